package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	Spectrum-based auto-PPM trainer.
 *
 * Description:	Estimates the dongle's reference error by watching where
 *		a known-good carrier actually lands in the passband.
 *		Ticked from the consumer read path, throttled hard, and
 *		full of guards because a wrong PPM write is worse than
 *		none: power debounce, DC-spur rejection, an SNR
 *		freshness requirement, a direction self-calibration, and
 *		a persistence vote before any step.  Once locked it goes
 *		quiet for good.
 *
 *		Off by default; enabled through the environment or the
 *		stream API.
 *
 *---------------------------------------------------------------*/

import (
	"math"
	"sync/atomic"
)

const AUTOPPM_PWR_DEBOUNCE_MS = 2000
const AUTOPPM_SNR_FRESH_MS = 800
const AUTOPPM_THROTTLE_MS = 1000
const AUTOPPM_DEAD_BAND_PPM = 0.8
const AUTOPPM_DIR_MARGIN_DB = 0.5
const AUTOPPM_PERSIST_VOTES = 4
const AUTOPPM_CLAMP_PPM = 200
const AUTOPPM_DC_GUARD_DB = 12
const AUTOPPM_TRAIN_MAX_STEPS = 8
const AUTOPPM_TRAIN_MAX_MS = 15000
const AUTOPPM_STABLE_DF_HZ = 120
const AUTOPPM_STABLE_MS = 3000

type autoppm_s struct {
	cfg autoppm_config_s

	enabled  atomic.Bool
	training atomic.Bool
	locked   atomic.Bool

	est_ppm_bits  atomic.Uint64 /* latest estimate, float64 bits */
	df_hz_bits    atomic.Uint64
	spec_snr_bits atomic.Uint64
	last_dir      atomic.Int32 /* -1, 0, +1 */
	cooldown_ms   atomic.Int64 /* remaining throttle at last tick, for status */

	lock_ppm_bits    atomic.Uint64
	lock_snr_bits    atomic.Uint64
	lock_df_bits     atomic.Uint64

	/* Trainer-thread-only state (the consumer read path). */

	train_started_ms int64
	pwr_above_since  int64
	last_change_ms   int64
	steps_done       int
	applied_ppm      int

	dir_probe        int     /* direction of the step awaiting judgment */
	dir_probe_snr    float64 /* SNR before that step */
	dir_confirmed    int     /* trusted direction after self-calibration */
	votes            int     /* same-direction decisions accumulated */
	vote_dir         int
	stable_since_ms  int64
}

func autoppm_create(cfg autoppm_config_s, initial_ppm int) *autoppm_s {
	var ap = &autoppm_s{ //nolint:exhaustruct
		cfg:         cfg,
		applied_ppm: initial_ppm,
	}
	ap.enabled.Store(cfg.enabled)
	return ap
}

func auto_ppm_training_active(ap *autoppm_s) bool {
	return ap != nil && ap.enabled.Load() && ap.training.Load() && !ap.locked.Load()
}

/* Snapshot for UI / status line. */

type autoppm_status_s struct {
	Enabled  bool
	Training bool
	Locked   bool
	EstPPM   float64
	DfHz     float64
	SNRdB    float64
	LastDir  int
	LockPPM  float64
	LockSNR  float64
	LockDfHz float64
}

func auto_ppm_get_status(ap *autoppm_s) autoppm_status_s {
	if ap == nil {
		return autoppm_status_s{} //nolint:exhaustruct
	}
	return autoppm_status_s{
		Enabled:  ap.enabled.Load(),
		Training: ap.training.Load(),
		Locked:   ap.locked.Load(),
		EstPPM:   math.Float64frombits(ap.est_ppm_bits.Load()),
		DfHz:     math.Float64frombits(ap.df_hz_bits.Load()),
		SNRdB:    math.Float64frombits(ap.spec_snr_bits.Load()),
		LastDir:  int(ap.last_dir.Load()),
		LockPPM:  math.Float64frombits(ap.lock_ppm_bits.Load()),
		LockSNR:  math.Float64frombits(ap.lock_snr_bits.Load()),
		LockDfHz: math.Float64frombits(ap.lock_df_bits.Load()),
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        autoppm_step_size
 *
 * Purpose:     Bigger estimated error, bigger step.
 *
 *--------------------------------------------------------------------*/

func autoppm_step_size(est_ppm float64) int {
	var mag = math.Abs(est_ppm)
	switch {
	case mag >= 50:
		return 8
	case mag >= 25:
		return 4
	case mag >= 12:
		return 2
	default:
		return 1
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        autoppm_tick
 *
 * Purpose:     One trainer evaluation, invoked from the consumer read.
 *
 *--------------------------------------------------------------------*/

func autoppm_tick(s *Stream) {
	var ap = s.autoppm
	if ap == nil || !ap.enabled.Load() || ap.locked.Load() {
		return
	}

	var now = dtime_monotonic_ms()
	if ap.train_started_ms == 0 {
		ap.train_started_ms = now
	}

	/* 1. Power debounce: the carrier has to be solidly there. */

	var pwr_db = 10 * math.Log10(metrics_channel_pwr(s.metrics)+1e-20)
	if pwr_db < ap.cfg.pwr_thr_db {
		ap.pwr_above_since = 0
		ap.training.Store(false)
		return
	}
	if ap.pwr_above_since == 0 {
		ap.pwr_above_since = now
	}
	if now-ap.pwr_above_since < AUTOPPM_PWR_DEBOUNCE_MS {
		return
	}

	ap.training.Store(true)

	/* 2./3. Spectrum peak with DC-spur guard. */

	var psd = make([]float64, SPECTRUM_BINS)
	var n, rate = spectrum_get(s.spectrum, psd, SPECTRUM_BINS)
	if n < 16 || rate <= 0 {
		return
	}
	psd = psd[:n]

	var ok, bin, peak_db, neighbor_db = spectrum_peak(psd, n/4)
	if !ok {
		return
	}
	if math.Round(bin) == float64(n/2) && peak_db-neighbor_db > AUTOPPM_DC_GUARD_DB {
		return
	}

	var spec_snr = spectrum_snr_db(psd, peak_db)
	ap.spec_snr_bits.Store(math.Float64bits(spec_snr))

	/* 4. Somebody must have demodulated this recently and believed it. */

	var snr_db, snr_at, _ = metrics_snr(s.metrics, IfThenElse(s.demod.cqpsk_enable, SNR_MODE_QPSK, SNR_MODE_C4FM))
	if snr_at == 0 || now-snr_at > AUTOPPM_SNR_FRESH_MS || snr_db < ap.cfg.snr_thr_db {
		return
	}

	/* 5. Frequency error from the interpolated peak. */

	var df_hz = (bin - float64(n)/2) * float64(rate) / float64(n)
	var f_center = controller_current_freq(s.ctrl)
	if f_center == 0 {
		return
	}
	var est_ppm = df_hz * 1e6 / float64(f_center)

	ap.df_hz_bits.Store(math.Float64bits(df_hz))
	ap.est_ppm_bits.Store(math.Float64bits(est_ppm))

	/* 10. Lock checks that do not require a step. */

	if autoppm_check_lock(s, ap, now, df_hz, est_ppm, snr_db) {
		return
	}

	/* 6. Dead band. */

	if math.Abs(est_ppm) <= AUTOPPM_DEAD_BAND_PPM {
		return
	}

	/* Throttle. */

	ap.cooldown_ms.Store(max64(0, AUTOPPM_THROTTLE_MS-(now-ap.last_change_ms)))
	if now-ap.last_change_ms < AUTOPPM_THROTTLE_MS {
		return
	}

	var step = autoppm_step_size(est_ppm)
	var dir = IfThenElse(est_ppm > 0, 1, -1)

	/* 7. Direction self-calibration: judge the previous probe before
	 * trusting this direction again. */

	if ap.dir_probe != 0 {
		if snr_db < ap.dir_probe_snr-AUTOPPM_DIR_MARGIN_DB {
			/* Worse.  Flip, undo double. */
			dir = -ap.dir_probe
			step *= 2
			ap.dir_confirmed = dir
			ap.last_dir.Store(int32(dir))
		} else if snr_db > ap.dir_probe_snr+AUTOPPM_DIR_MARGIN_DB {
			ap.dir_confirmed = ap.dir_probe
		}
		ap.dir_probe = 0
	}

	/* 8. Persistence vote. */

	var need = AUTOPPM_PERSIST_VOTES
	if step > 1 {
		need = AUTOPPM_PERSIST_VOTES / 2
	}
	if dir == ap.vote_dir {
		ap.votes++
	} else {
		ap.vote_dir = dir
		ap.votes = 1
	}
	if ap.votes < need {
		return
	}
	ap.votes = 0

	/* 9. Apply, clamped. */

	var next = clampi(ap.applied_ppm+dir*step, -AUTOPPM_CLAMP_PPM, AUTOPPM_CLAMP_PPM)
	if next == ap.applied_ppm {
		return
	}

	if ap.dir_confirmed == 0 {
		ap.dir_probe = dir
		ap.dir_probe_snr = snr_db
	}

	ap.applied_ppm = next
	ap.steps_done++
	ap.last_change_ms = now
	ap.last_dir.Store(int32(dir))
	ap.stable_since_ms = 0

	controller_enqueue_ppm(s.ctrl, next)

	text_color_set(TC_COLOR_DEBUG)
	tc_printf("Auto-PPM: df %.0f Hz, est %.1f ppm, stepping %+d to %d\n", df_hz, est_ppm, dir*step, next)
}

/*-------------------------------------------------------------------
 *
 * Name:        autoppm_check_lock
 *
 * Purpose:     The four ways training ends.
 *
 *--------------------------------------------------------------------*/

func autoppm_check_lock(s *Stream, ap *autoppm_s, now int64, df_hz, est_ppm, snr_db float64) bool {

	var lock = false

	if ap.steps_done >= AUTOPPM_TRAIN_MAX_STEPS {
		lock = true
	}

	if !lock && ap.steps_done >= 1 && ap.train_started_ms != 0 && now-ap.train_started_ms >= AUTOPPM_TRAIN_MAX_MS {
		lock = true
	}

	if !lock && ap.steps_done >= 1 && math.Abs(df_hz) <= AUTOPPM_STABLE_DF_HZ {
		if ap.stable_since_ms == 0 {
			ap.stable_since_ms = now
		} else if now-ap.stable_since_ms >= AUTOPPM_STABLE_MS {
			lock = true
		}
	} else if math.Abs(df_hz) > AUTOPPM_STABLE_DF_HZ {
		ap.stable_since_ms = 0
	}

	/* Permissible zero-step lock: the dongle was simply right. */
	if !lock && ap.steps_done == 0 &&
		math.Abs(df_hz) <= ap.cfg.zerolock_hz && math.Abs(est_ppm) <= ap.cfg.zerolock_ppm {
		lock = true
	}

	if !lock {
		return false
	}

	ap.lock_ppm_bits.Store(math.Float64bits(float64(ap.applied_ppm)))
	ap.lock_snr_bits.Store(math.Float64bits(snr_db))
	ap.lock_df_bits.Store(math.Float64bits(df_hz))
	ap.locked.Store(true)
	ap.training.Store(false)

	text_color_set(TC_COLOR_INFO)
	tc_printf("Auto-PPM locked: %d ppm (df %.0f Hz, SNR %.1f dB, %d steps)\n",
		ap.applied_ppm, df_hz, snr_db, ap.steps_done)

	return true
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

/* end autoppm.go */
