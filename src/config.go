package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	Stream configuration.
 *
 * Description:	Everything configurable is folded into an immutable
 *		stream_config_s at open time: caller-supplied Options
 *		first, then the recognized environment (the historical
 *		DSD_NEO_* names).  No component looks at the
 *		environment after open.
 *
 *---------------------------------------------------------------*/

import (
	"os"
	"strconv"
	"strings"
)

// Options is the caller-facing configuration for StreamOpen.
type Options struct {
	DeviceIndex int    // USB dongle index.  Ignored when TCPAddr is set.
	TCPAddr     string // "host:port" of an rtl_tcp server, empty for USB.

	Freqs []int64 // Scan list, first entry tuned at cold start.  1..MAX_FREQS.

	CQPSK bool // Differential-QPSK symbol output instead of FM audio.

	GainTenthDB int // Commanded tuner gain in tenths of dB.  Negative = driver auto.
	PPM         int // Initial frequency correction.

	RateIn  int // DSP baseband rate after the halfband cascade.  Default 48000.
	RateOut int // Demodulated output rate before resampling.  Default 48000, 24000 for CQPSK.

	ResampTargetHz int // Polyphase resampler target.  0 disables.  FM path only.

	SquelchLevel  float64 // Channel power squelch threshold.  0 disables.
	ConseqSquelch int     // Squelched blocks tolerated before a hop.  Default 4.

	TEDSPSOverride int // Samples per symbol forced by the caller (4 or 5 for P25), 0 = derive.

	DeemphasisTauUs int // FM deemphasis time constant: 50, 75, or 750.  0 disables.

	UDPPort  int  // External retune listener.  0 disables.
	Announce bool // Announce the UDP port via DNS-SD.

	BufLen int // Device transfer size in bytes.  Default DEFAULT_BUF_LEN.

	RetuneDrainMs int // How long Read may keep draining stale output after a retune.  Default 50.

	EnableColor bool
}

type if_gain_s struct {
	stage    int
	tenth_db int
}

type autogain_config_s struct {
	enabled      bool
	probe_ms     int
	seed_db      int
	spec_snr_db  float64
	inband_ratio float64
	up_step_db   int
	up_persist   int
}

type autoppm_config_s struct {
	enabled         bool
	snr_thr_db      float64
	pwr_thr_db      float64
	zerolock_ppm    float64
	zerolock_hz     float64
	freeze_on_train bool
}

type stream_config_s struct {
	opts Options

	tuner_bw_hz       int /* -1 = auto */
	disable_fs4_shift bool
	combine_rot       bool
	rtl_direct        int /* 0 = off, 1 = I branch, 2 = Q branch */
	offset_tuning     int /* -1 = driver default, 0 = force off, 1 = force on */
	rtl_xtal_hz       int
	tuner_xtal_hz     int
	rtl_testmode      bool
	if_gains          []if_gain_s

	autogain autogain_config_s
	autoppm  autoppm_config_s

	tcp_prebuf_ms int
	tcp_autotune  bool

	debug_cqpsk bool
}

func env_truthy(name string) bool {
	var v = strings.TrimSpace(os.Getenv(name))
	switch strings.ToLower(v) {
	case "", "0", "false", "off", "no":
		return false
	}
	return true
}

func env_int(name string, def int) int {
	var v = strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	var n, err = strconv.Atoi(v)
	if err != nil {
		text_color_set(TC_COLOR_ERROR)
		tc_printf("Ignoring %s=%q, not an integer.\n", name, v)
		return def
	}
	return n
}

func env_float(name string, def float64) float64 {
	var v = strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	var f, err = strconv.ParseFloat(v, 64)
	if err != nil {
		text_color_set(TC_COLOR_ERROR)
		tc_printf("Ignoring %s=%q, not a number.\n", name, v)
		return def
	}
	return f
}

/*-------------------------------------------------------------------
 *
 * Name:        config_from_env
 *
 * Purpose:     Build the immutable configuration record from Options
 *		plus the recognized environment variables.
 *
 *--------------------------------------------------------------------*/

func config_from_env(opts Options) *stream_config_s {

	if opts.RateIn == 0 {
		opts.RateIn = 48000
	}
	if opts.RateOut == 0 {
		opts.RateOut = IfThenElse(opts.CQPSK, 24000, 48000)
	}
	if opts.BufLen == 0 {
		opts.BufLen = DEFAULT_BUF_LEN
	}
	if opts.ConseqSquelch == 0 {
		opts.ConseqSquelch = 4
	}
	if opts.RetuneDrainMs == 0 {
		opts.RetuneDrainMs = 50
	}

	var cfg = &stream_config_s{ //nolint:exhaustruct
		opts:          opts,
		tuner_bw_hz:   -1,
		offset_tuning: -1,
	}

	switch bw := strings.TrimSpace(os.Getenv("DSD_NEO_TUNER_BW_HZ")); strings.ToLower(bw) {
	case "", "auto":
		// stay on auto
	default:
		if hz, err := strconv.Atoi(bw); err == nil && hz >= 0 {
			cfg.tuner_bw_hz = hz
		}
	}

	cfg.disable_fs4_shift = env_truthy("DSD_NEO_DISABLE_FS4_SHIFT")

	// Fused normalize+rotate on ingest defaults to on.
	cfg.combine_rot = true
	if _, ok := os.LookupEnv("DSD_NEO_COMBINE_ROT"); ok {
		cfg.combine_rot = env_truthy("DSD_NEO_COMBINE_ROT")
	}

	switch strings.ToUpper(strings.TrimSpace(os.Getenv("DSD_NEO_RTL_DIRECT"))) {
	case "1", "I":
		cfg.rtl_direct = 1
	case "2", "Q":
		cfg.rtl_direct = 2
	}

	if _, ok := os.LookupEnv("DSD_NEO_RTL_OFFSET_TUNING"); ok {
		cfg.offset_tuning = IfThenElse(env_truthy("DSD_NEO_RTL_OFFSET_TUNING"), 1, 0)
	}

	cfg.rtl_xtal_hz = env_int("DSD_NEO_RTL_XTAL_HZ", 0)
	cfg.tuner_xtal_hz = env_int("DSD_NEO_TUNER_XTAL_HZ", 0)
	cfg.rtl_testmode = env_truthy("DSD_NEO_RTL_TESTMODE")
	cfg.if_gains = parse_if_gains(os.Getenv("DSD_NEO_RTL_IF_GAINS"))

	cfg.autogain = autogain_config_s{
		enabled:      env_truthy("DSD_NEO_TUNER_AUTOGAIN"),
		probe_ms:     env_int("DSD_NEO_TUNER_AUTOGAIN_PROBE_MS", 3000),
		seed_db:      env_int("DSD_NEO_TUNER_AUTOGAIN_SEED_DB", 30),
		spec_snr_db:  env_float("DSD_NEO_TUNER_AUTOGAIN_SPEC_SNR_DB", 6),
		inband_ratio: env_float("DSD_NEO_TUNER_AUTOGAIN_INBAND_RATIO", 0.60),
		up_step_db:   env_int("DSD_NEO_TUNER_AUTOGAIN_UP_STEP_DB", 3),
		up_persist:   env_int("DSD_NEO_TUNER_AUTOGAIN_UP_PERSIST", 2),
	}

	cfg.autoppm = autoppm_config_s{
		enabled:         env_truthy("DSD_NEO_AUTO_PPM"),
		snr_thr_db:      env_float("DSD_NEO_AUTO_PPM_SNR_DB", 6),
		pwr_thr_db:      env_float("DSD_NEO_AUTO_PPM_PWR_DB", -80),
		zerolock_ppm:    env_float("DSD_NEO_AUTO_PPM_ZEROLOCK_PPM", 0.6),
		zerolock_hz:     env_float("DSD_NEO_AUTO_PPM_ZEROLOCK_HZ", 60),
		freeze_on_train: true,
	}
	if _, ok := os.LookupEnv("DSD_NEO_AUTO_PPM_FREEZE"); ok {
		cfg.autoppm.freeze_on_train = env_truthy("DSD_NEO_AUTO_PPM_FREEZE")
	}

	cfg.tcp_prebuf_ms = clampi(env_int("DSD_NEO_TCP_PREBUF_MS", 0), 0, 1000)
	if cfg.tcp_prebuf_ms > 0 && cfg.tcp_prebuf_ms < 5 {
		cfg.tcp_prebuf_ms = 5
	}
	cfg.tcp_autotune = env_truthy("DSD_NEO_TCP_AUTOTUNE")

	cfg.debug_cqpsk = env_truthy("DSD_NEO_DEBUG_CQPSK")

	return cfg
}

// "stage:gain[,stage:gain]..." with gains in tenths of dB.
func parse_if_gains(s string) []if_gain_s {
	var out []if_gain_s
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var stage_s, gain_s, found = strings.Cut(part, ":")
		if !found {
			continue
		}
		var stage, serr = strconv.Atoi(strings.TrimSpace(stage_s))
		var gain, gerr = strconv.Atoi(strings.TrimSpace(gain_s))
		if serr != nil || gerr != nil {
			text_color_set(TC_COLOR_ERROR)
			tc_printf("Ignoring malformed IF gain entry %q.\n", part)
			continue
		}
		out = append(out, if_gain_s{stage: stage, tenth_db: gain})
	}
	return out
}

/* end config.go */
