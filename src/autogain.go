package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	Supervisory tuner autogain.
 *
 * Description:	Watches the raw ingest level block by block and nudges
 *		the commanded tuner gain.  Down-steps are cheap and
 *		fast: clipping destroys the signal immediately.
 *		Up-steps are deliberately paranoid: the channel must be
 *		open, the spectrum must show a believable carrier in the
 *		middle of the passband (not the dongle's own DC spur),
 *		and the condition must persist across windows.
 *
 *		Off by default; enabled through the environment.
 *		Observation happens on the DSP worker thread; the actual
 *		register write is marshalled onto the controller.
 *
 *---------------------------------------------------------------*/

import (
	"math"
)

const AUTOGAIN_WINDOW_BLOCKS = 40
const AUTOGAIN_HIGH_THRESH = 0.9
const AUTOGAIN_LOW_THRESH = 0.06
const AUTOGAIN_HIGH_BLOCKS = 3    /* high blocks in a window that force a down-step */
const AUTOGAIN_LOW_FRACTION = 0.75 /* low fraction that triggers the auto-exit bootstrap */
const AUTOGAIN_DOWN_STEP_DB = 5
const AUTOGAIN_THROTTLE_MS = 1500
const AUTOGAIN_RETUNE_HOLD_MS = 1200
const AUTOGAIN_MAX_TENTH_DB = 490
const AUTOGAIN_DC_GUARD_DB = 12

type autogain_s struct {
	cfg autogain_config_s

	started_ms     int64
	last_change_ms int64

	blocks     int
	high_count int
	low_count  int

	up_windows int /* consecutive windows the up-gate held */
}

func autogain_create(cfg autogain_config_s) *autogain_s {
	return &autogain_s{ //nolint:exhaustruct
		cfg:        cfg,
		started_ms: dtime_monotonic_ms(),
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        autogain_observe_block
 *
 * Purpose:     Called once per raw input block, before any DSP.
 *		Closes a window every AUTOGAIN_WINDOW_BLOCKS blocks and
 *		maybe decides a gain change.
 *
 *--------------------------------------------------------------------*/

func autogain_observe_block(s *Stream, raw []float64) {
	var ag = s.autogain
	if ag == nil || !ag.cfg.enabled {
		return
	}

	var peak, sum float64
	for _, v := range raw {
		var a = math.Abs(v)
		if a > peak {
			peak = a
		}
		sum += a
	}
	var mean = sum / float64(max(len(raw), 1))

	if peak > AUTOGAIN_HIGH_THRESH {
		ag.high_count++
	}
	if mean < AUTOGAIN_LOW_THRESH {
		ag.low_count++
	}
	ag.blocks++

	if ag.blocks < AUTOGAIN_WINDOW_BLOCKS {
		return
	}

	autogain_evaluate(s, ag)

	ag.blocks = 0
	ag.high_count = 0
	ag.low_count = 0
}

func autogain_evaluate(s *Stream, ag *autogain_s) {
	var now = dtime_monotonic_ms()

	/* Let the driver's own AGC settle after startup, leave freshly
	 * retuned channels alone, and never thrash. */
	if now-ag.started_ms < int64(ag.cfg.probe_ms) {
		return
	}
	if now-controller_last_retune_ms(s.ctrl) < AUTOGAIN_RETUNE_HOLD_MS {
		return
	}
	if now-ag.last_change_ms < AUTOGAIN_THROTTLE_MS {
		return
	}

	var cur = s.dev.get_tuner_gain()

	/* Clipping: step down no matter what mode the driver is in. */

	if ag.high_count >= AUTOGAIN_HIGH_BLOCKS {
		var next = clampi(cur-10*AUTOGAIN_DOWN_STEP_DB, 0, AUTOGAIN_MAX_TENTH_DB)
		controller_enqueue_gain(s.ctrl, next)
		ag.last_change_ms = now
		ag.up_windows = 0
		text_color_set(TC_COLOR_DEBUG)
		tc_printf("Autogain: input clipping, stepping down to %.1f dB\n", float64(next)/10)
		return
	}

	/* Starved while the driver is in auto: bootstrap to a manual seed
	 * so the rest of this machine has something to steer. */

	if s.dev.is_auto_gain() && float64(ag.low_count) >= AUTOGAIN_LOW_FRACTION*float64(AUTOGAIN_WINDOW_BLOCKS) {
		var next = clampi(10*ag.cfg.seed_db, 0, AUTOGAIN_MAX_TENTH_DB)
		controller_enqueue_gain(s.ctrl, next)
		ag.last_change_ms = now
		ag.up_windows = 0
		text_color_set(TC_COLOR_DEBUG)
		tc_printf("Autogain: exiting driver auto at %.1f dB seed\n", float64(next)/10)
		return
	}

	/* Up-step gate. */

	if !autogain_up_gate(s, ag) {
		ag.up_windows = 0
		return
	}

	ag.up_windows++
	if ag.up_windows < ag.cfg.up_persist {
		return
	}
	ag.up_windows = 0

	var next = clampi(cur+10*ag.cfg.up_step_db, 0, AUTOGAIN_MAX_TENTH_DB)
	if next != cur {
		controller_enqueue_gain(s.ctrl, next)
		ag.last_change_ms = now
		text_color_set(TC_COLOR_DEBUG)
		tc_printf("Autogain: headroom available, stepping up to %.1f dB\n", float64(next)/10)
	}
}

// The spectral conditions for believing more gain would help: an open
// channel, a peak near the center that is not the DC spur, enough
// spectral SNR, and most of the power actually in-band.
func autogain_up_gate(s *Stream, ag *autogain_s) bool {
	if s.demod.channel_squelched {
		return false
	}

	var psd = make([]float64, SPECTRUM_BINS)
	var n, _ = spectrum_get(s.spectrum, psd, SPECTRUM_BINS)
	if n < 8 {
		return false
	}
	psd = psd[:n]

	var ok, bin, peak_db, neighbor_db = spectrum_peak(psd, n/4)
	if !ok {
		return false
	}

	/* A spike exactly on the center bin towering over its neighbors is
	 * the dongle's DC spur, not a signal. */
	var center = float64(n / 2)
	if math.Round(bin) == center && peak_db-neighbor_db > AUTOGAIN_DC_GUARD_DB {
		return false
	}

	if spectrum_snr_db(psd, peak_db) < ag.cfg.spec_snr_db {
		return false
	}

	if spectrum_inband_ratio(psd) < ag.cfg.inband_ratio {
		return false
	}

	return true
}

/* end autogain.go */
