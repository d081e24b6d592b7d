package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	Demodulator state, channel filter profiles, and the
 *		retune reset rules.
 *
 * Description:	All of this is owned by the DSP worker while the stream
 *		is running.  The controller only touches it with the
 *		retune gate up (retune_in_progress), which is the one
 *		moment the worker is guaranteed to be discarding blocks.
 *
 *---------------------------------------------------------------*/

import (
	"math"
)

type lpf_profile_e int

const (
	LPF_PROFILE_WIDE      lpf_profile_e = iota /* analog FM voice */
	LPF_PROFILE_NARROW                         /* digital narrowband FSK */
	LPF_PROFILE_OP25_TDMA                      /* P25 Phase 2, 6000 sym/s */
	LPF_PROFILE_OP25_FDMA                      /* P25 Phase 1, 4800 sym/s */
)

// Channel LPF cutoffs in Hz.  The TDMA/FDMA values track the OP25 channel
// filters; wide and narrow are conventional voice bandwidths.
var lpf_profile_cutoff_hz = map[lpf_profile_e]float64{
	LPF_PROFILE_WIDE:      8000,
	LPF_PROFILE_NARROW:    5000,
	LPF_PROFILE_OP25_TDMA: 9600,
	LPF_PROFILE_OP25_FDMA: 7000,
}

// Noise-equivalent bandwidth of each profile, measured at a 24 kHz output
// rate and scaled linearly with the actual rate when correcting SNR
// estimates.
var lpf_profile_noise_bw_24k = map[lpf_profile_e]float64{
	LPF_PROFILE_WIDE:      8200,
	LPF_PROFILE_NARROW:    5400,
	LPF_PROFILE_OP25_TDMA: 9800,
	LPF_PROFILE_OP25_FDMA: 7200,
}

const CHANNEL_LPF_TAPS = 63

/* Sentinel for "drop the SPS override at the next retune". */
const TED_SPS_CLEAR = -1

/* Gardner TED delay line length: enough for mid/now/prev at 2 samples
 * per symbol plus interpolation slack. */
const TED_DELAY_LEN = 8

type demod_state_s struct {

	/* Rates */

	rate_in           int /* DSP baseband rate after the halfband cascade */
	rate_out          int /* demodulated output rate */
	capture_rate      int /* hardware rate = rate_in << downsample_passes */
	downsample_passes int /* log2 of the cascade decimation, 0..10 */
	post_downsample   int /* extra integer decimation on the audio, 1 = off */

	/* fs/4 arrangement */

	fs4_active bool /* rotation applied on ingest (or by the mixer below) */
	mixer_fs4  bool /* rotation deferred to the software mixer stage */
	fs4_phase  int  /* mixer rotation phase, persists across blocks */

	/* Per-stage halfband history, interleaved I,Q. */

	hb_hist [MAX_DOWNSAMPLE_PASSES][]float64

	/* Channel LPF */

	channel_lpf_profile lpf_profile_e
	channel_lpf_taps    []float64
	channel_lpf_hist_i  []float64
	channel_lpf_hist_q  []float64

	/* IQ DC blocker */

	iq_dc_enabled bool
	iq_dc_shift   int /* EMA shift exponent, 6..15 */
	iq_dc_avg_i   float64
	iq_dc_avg_q   float64
	iq_dc_primed  bool

	iq_balance_enabled bool
	iq_balance_ratio   float64

	/* FM envelope AGC ahead of the discriminator */

	fm_agc_enabled    bool
	fm_agc_target_rms float64
	fm_agc_min_rms    float64
	fm_agc_alpha_up   float64
	fm_agc_alpha_down float64
	fm_agc_gain       float64
	fm_agc_rms_ema    float64
	fm_limiter_on     bool

	/* FM audio shaping */

	deemph_alpha    float64 /* 0 = off */
	deemph_state    float64
	audio_lpf_alpha float64 /* 0 = off */
	audio_lpf_state float64
	fm_prev         complex128 /* discriminator one-sample memory */

	/* Band-edge FLL */

	fll_enabled bool
	fll_freq    float64 /* rad/sample */
	fll_phase   float64
	fll_alpha   float64
	fll_beta    float64
	fll_taps_up []complex128
	fll_taps_dn []complex128
	fll_hist    []complex128
	fll_prev_up complex128
	fll_prev_dn complex128

	/* Gardner timing error detector */

	ted_enabled      bool
	ted_sps          float64 /* nominal samples per symbol */
	ted_sps_override int     /* 0 = none; 4 = P25p2, 5 = P25p1 */
	ted_mu           float64
	ted_omega        float64
	ted_gain         float64
	ted_force        bool
	ted_delay        []complex128
	ted_delay_fill   int
	ted_e_ema        float64

	/* Costas loop */

	costas_freq          float64
	costas_phase         float64
	costas_alpha         float64
	costas_beta          float64
	costas_error         float64
	costas_reset_pending bool /* set by an SPS change, consumed by the next retune */

	/* CQPSK */

	cqpsk_enable bool
	diff_prev    complex128
	mf_enabled   bool /* RRC matched filter */
	rrc_alpha    float64
	rrc_span     int
	rrc_taps     []float64
	rrc_hist_i   []float64
	rrc_hist_q   []float64

	/* Rational resampler (FM path) */

	resamp_enabled bool
	resamp_target  int
	resamp_l       int
	resamp_m       int
	resamp_taps    [][]float64 /* one sub-filter per output phase */
	resamp_hist    []float64
	resamp_phase   int
	resamp_warned  bool /* infeasible-ratio warning printed once */

	/* Squelch */

	squelch_level        float64 /* power threshold, 0 = off */
	squelch_running_pwr  float64
	squelch_hits         int
	conseq_squelch       int
	terminate_on_squelch bool
	channel_squelched    bool

	/* Scratch: the block being worked on, interleaved I,Q. */

	lowpassed []float64
	lp_len    int

	/* Post-channel-filter power of the last block. */

	channel_pwr float64
}

/*-------------------------------------------------------------------
 *
 * Name:        demod_init_state
 *
 * Purpose:     One-time construction of the demod state from the
 *		configuration.  Rates and cascade depth come from the
 *		controller's capture-settings computation.
 *
 *--------------------------------------------------------------------*/

func demod_init_state(cfg *stream_config_s) *demod_state_s {
	var d = &demod_state_s{ //nolint:exhaustruct
		rate_in:  cfg.opts.RateIn,
		rate_out: cfg.opts.RateOut,

		post_downsample: 1,

		iq_dc_shift: 9,

		iq_balance_ratio: 1.0,

		fm_agc_target_rms: 0.35,
		fm_agc_min_rms:    0.01,
		fm_agc_alpha_up:   0.25,
		fm_agc_alpha_down: 0.04,
		fm_agc_gain:       1.0,

		fll_enabled: true,
		fll_alpha:   0.002,
		fll_beta:    2e-6,

		ted_enabled: true,
		ted_gain:    0.175,
		ted_mu:      0.5,

		costas_alpha: 0.04,
		costas_beta:  0.002,

		cqpsk_enable: cfg.opts.CQPSK,
		diff_prev:    complex(1, 0),
		mf_enabled:   true,
		rrc_alpha:    0.2,
		rrc_span:     8,

		resamp_target: cfg.opts.ResampTargetHz,

		squelch_level:  cfg.opts.SquelchLevel,
		conseq_squelch: cfg.opts.ConseqSquelch,

		channel_lpf_profile: IfThenElse(cfg.opts.CQPSK, LPF_PROFILE_OP25_FDMA, LPF_PROFILE_WIDE),
	}

	if cfg.opts.TEDSPSOverride != 0 {
		d.ted_sps_override = cfg.opts.TEDSPSOverride
	}
	d.ted_sps = demod_nominal_sps(d)
	d.ted_omega = d.ted_sps

	if tau := cfg.opts.DeemphasisTauUs; tau > 0 {
		d.deemph_alpha = deemph_alpha_from_tau(tau, d.rate_out)
		d.audio_lpf_alpha = audio_lpf_alpha(d.rate_out)
	}

	for p := 0; p < MAX_DOWNSAMPLE_PASSES; p++ {
		d.hb_hist[p] = make([]float64, 2*(len(halfband_taps)-1))
	}

	d.ted_delay = make([]complex128, TED_DELAY_LEN)

	demod_design_channel_lpf(d)
	demod_design_rrc(d)
	fll_design_taps(d)

	return d
}

// Nominal samples per symbol.  The override wins; otherwise derive from
// the P25 Phase 1 symbol rate, the only symbol clock used without an
// override.
func demod_nominal_sps(d *demod_state_s) float64 {
	if d.ted_sps_override != 0 {
		return float64(d.ted_sps_override)
	}
	return float64(d.rate_out) / 4800.0
}

// The CQPSK channel filter tracks the access method: 4 samples per symbol
// means P25 Phase 2 TDMA at 6000 sym/s, 5 means Phase 1 FDMA at 4800.
func demod_select_cqpsk_profile(d *demod_state_s) {
	if !d.cqpsk_enable {
		return
	}
	var want = IfThenElse(d.ted_sps_override == 4, LPF_PROFILE_OP25_TDMA, LPF_PROFILE_OP25_FDMA)
	if want != d.channel_lpf_profile {
		d.channel_lpf_profile = want
		demod_design_channel_lpf(d)
	}
}

func demod_design_channel_lpf(d *demod_state_s) {
	var fc = lpf_profile_cutoff_hz[d.channel_lpf_profile] / float64(d.rate_in)
	if fc >= 0.5 {
		fc = 0.49
	}
	d.channel_lpf_taps = make([]float64, CHANNEL_LPF_TAPS)
	gen_lowpass(fc, d.channel_lpf_taps, CHANNEL_LPF_TAPS, BP_WINDOW_HAMMING)
	d.channel_lpf_hist_i = make([]float64, CHANNEL_LPF_TAPS-1)
	d.channel_lpf_hist_q = make([]float64, CHANNEL_LPF_TAPS-1)
}

func demod_design_rrc(d *demod_state_s) {
	var sps = demod_nominal_sps(d)
	var taps = int(sps)*d.rrc_span + 1
	if taps < 3 {
		taps = 3
	}
	d.rrc_taps = make([]float64, taps)
	gen_rrc_lowpass(d.rrc_taps, taps, d.rrc_alpha, sps)
	d.rrc_hist_i = make([]float64, taps-1)
	d.rrc_hist_q = make([]float64, taps-1)
}

func deemph_alpha_from_tau(tau_us int, rate int) float64 {
	// One-pole y += alpha * (x - y) with alpha from the RC time constant.
	var tau = float64(tau_us) * 1e-6
	return 1.0 - math.Exp(-1.0/(float64(rate)*tau))
}

func audio_lpf_alpha(rate int) float64 {
	// Gentle one-pole around 0.45 of the audio band edge.
	var fc = 0.45 * float64(rate) / 2.0
	return 1.0 - math.Exp(-2.0*math.Pi*fc/float64(rate))
}

/*-------------------------------------------------------------------
 *
 * Name:        demod_reset_on_retune
 *
 * Purpose:     Put the DSP into a sane state for a new frequency.
 *
 * Description:	Most loop state survives an ordinary retune so adjacent
 *		channels on the same system re-lock quickly.  A P25
 *		Phase 2 voice channel (SPS override 4 with CQPSK on) is
 *		the exception: its symbol clock and carrier are far
 *		enough from the control channel's that stale state
 *		fights the fresh lock, so everything is cleared.
 *
 *		A pending SPS change (costas_reset_pending) also forces
 *		the full Costas reset, whatever the target channel.
 *
 *--------------------------------------------------------------------*/

func demod_reset_on_retune(d *demod_state_s, pending_sps_override int) {

	var p25p2_vc = pending_sps_override == 4 && d.cqpsk_enable

	/* Squelch accumulators always start over. */

	d.squelch_hits = 0
	d.squelch_running_pwr = 0
	d.channel_squelched = false

	/* FLL: taps are redesigned eagerly from the current SPS; the
	 * tracked frequency survives unless this is a Phase 2 VC tune. */

	d.fll_phase = 0
	fll_design_taps(d)
	if p25p2_vc {
		d.fll_freq = 0
	}
	for i := range d.fll_hist {
		d.fll_hist[i] = 0
	}
	d.fll_prev_up = 0
	d.fll_prev_dn = 0

	/* Gardner TED. */

	if p25p2_vc {
		for i := range d.ted_delay {
			d.ted_delay[i] = 0
		}
		d.ted_delay_fill = 0
		d.ted_mu = 0.5
		for p := range d.hb_hist {
			for i := range d.hb_hist[p] {
				d.hb_hist[p][i] = 0
			}
		}
		for i := range d.channel_lpf_hist_i {
			d.channel_lpf_hist_i[i] = 0
			d.channel_lpf_hist_q[i] = 0
		}
	}

	/* Costas: phase and error always restart; frequency is kept for
	 * same-SPS tunes so the loop re-acquires instantly. */

	d.costas_phase = 0
	d.costas_error = 0
	if p25p2_vc || d.costas_reset_pending {
		d.costas_freq = 0
		d.costas_reset_pending = false
	}

	/* Apply a pending SPS override and let the channel filter follow. */

	if pending_sps_override == TED_SPS_CLEAR {
		d.ted_sps_override = 0
	} else if pending_sps_override != 0 {
		d.ted_sps_override = pending_sps_override
	}
	d.ted_sps = demod_nominal_sps(d)
	d.ted_omega = d.ted_sps
	demod_select_cqpsk_profile(d)

	/* Differential demod restarts from a unit phasor so the first
	 * post-retune symbol passes through unchanged. */

	d.diff_prev = complex(1, 0)

	d.fm_prev = 0
	d.deemph_state = 0
	d.audio_lpf_state = 0
	d.fs4_phase = 0
	d.iq_dc_primed = false
}

/* end demod_state.go */
