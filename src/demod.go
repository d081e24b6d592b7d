package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	The DSP worker: one thread that drains the input ring,
 *		runs the full demodulation chain on each block, updates
 *		the estimators, and feeds the output ring.
 *
 * Inputs:	Interleaved I,Q floats at the capture rate.
 *
 * Outputs:	FM: audio samples, optionally rate-converted.
 *		CQPSK: one complex symbol per entry, no resampling.
 *
 *---------------------------------------------------------------*/

import (
	"math"
	"time"
)

/*-------------------------------------------------------------------
 *
 * Name:        fs4_mixer
 *
 * Purpose:     Standalone fs/4 rotation for when the fused ingest
 *		rotation is disabled.  Multiplies sample n by j^n, the
 *		quarter-rate sequence (+1, +j, -1, -j, ...), with phase
 *		carried across blocks.  The dongle sits a quarter rate
 *		above the channel, so this +fs/4 shift brings the
 *		channel from -fs/4 to DC.
 *
 *--------------------------------------------------------------------*/

func fs4_mixer(d *demod_state_s) {
	var pairs = d.lp_len / 2
	for p := 0; p < pairs; p++ {
		var i = d.lowpassed[2*p]
		var q = d.lowpassed[2*p+1]
		switch d.fs4_phase & 3 {
		case 0:
			/* multiply by +1 */
		case 1: /* multiply by +j */
			d.lowpassed[2*p] = -q
			d.lowpassed[2*p+1] = i
		case 2: /* multiply by -1 */
			d.lowpassed[2*p] = -i
			d.lowpassed[2*p+1] = -q
		case 3: /* multiply by -j */
			d.lowpassed[2*p] = q
			d.lowpassed[2*p+1] = -i
		}
		d.fs4_phase++
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        full_demod
 *
 * Purpose:     Run one block through the whole chain, in place in the
 *		demod scratch.
 *
 *--------------------------------------------------------------------*/

func full_demod(s *Stream, d *demod_state_s) {

	if d.mixer_fs4 {
		fs4_mixer(d)
	}

	iq_dc_block(d)
	iq_balance(d)

	/* Halfband cascade down to the DSP baseband rate. */

	for pass := 0; pass < d.downsample_passes; pass++ {
		d.lp_len = halfband_decim2(d.lowpassed[:d.lp_len], d.lowpassed, d.hb_hist[pass])
	}

	/* Channel filter. */

	fir_apply_complex(d.lowpassed[:d.lp_len], d.channel_lpf_taps, d.channel_lpf_hist_i, d.channel_lpf_hist_q)

	/* Post-filter channel power, the number squelch and the soft-
	 * squelch API live on. */

	var pairs = d.lp_len / 2
	var pwr float64
	for p := 0; p < pairs; p++ {
		var i = d.lowpassed[2*p]
		var q = d.lowpassed[2*p+1]
		pwr += i*i + q*q
	}
	if pairs > 0 {
		pwr /= float64(pairs)
	}
	d.channel_pwr = pwr
	d.squelch_running_pwr += 0.25 * (pwr - d.squelch_running_pwr)

	if d.squelch_level > 0 {
		if d.squelch_running_pwr < d.squelch_level {
			d.squelch_hits++
		} else {
			d.squelch_hits = 0
			d.channel_squelched = false
		}
		if d.squelch_hits > d.conseq_squelch {
			d.channel_squelched = true
		}
	}

	/* Observers see the conditioned baseband, not the demod result. */

	spectrum_feed(s.spectrum, d.lowpassed[:d.lp_len], d.rate_in)
	if !d.cqpsk_enable {
		scope_feed_baseband(s.scope, d.lowpassed[:d.lp_len], d.ted_sps)
	}

	if d.cqpsk_enable {
		cqpsk_demod(d)
		scope_feed_symbols(s.scope, d.lowpassed[:d.lp_len])
	} else {
		fm_agc(d)
		fm_discriminate(d)
		fm_audio_shape(d)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        dsp_worker
 *
 * Purpose:     Thread body.  Gated by cold_start_ready (no processing
 *		until the controller has programmed the dongle and built
 *		the DSP state) and by retune_in_progress (blocks in
 *		flight across a retune are stale and dropped).
 *
 *--------------------------------------------------------------------*/

func dsp_worker(s *Stream) {
	defer s.wg.Done()

	var d = s.demod
	var raw = make([]float64, s.cfg.opts.BufLen)
	var resampled []float64

	for !s.should_exit.Load() {

		var n = ring_read_block(s.input, raw, 100*time.Millisecond)
		if n == 0 {
			continue
		}

		if !s.cold_start_ready.Load() || s.retune_in_progress.Load() {
			continue /* discard: state is mid-surgery */
		}

		autogain_observe_block(s, raw[:n])

		if len(d.lowpassed) < n {
			d.lowpassed = make([]float64, n)
		}
		copy(d.lowpassed[:n], raw[:n])
		d.lp_len = n

		full_demod(s, d)

		estimators_update(s.metrics, d, s.scope)

		if d.channel_squelched && d.squelch_hits > d.conseq_squelch {
			controller_signal_hop(s.ctrl)
			if d.terminate_on_squelch {
				s.should_exit.Store(true)
				ring_close(s.output)
				return
			}
		}

		if d.cqpsk_enable {
			/* One complex symbol per entry, straight out. */
			ring_write_block(s.output, d.lowpassed[:d.lp_len])
			continue
		}

		if d.channel_squelched {
			for k := 0; k < d.lp_len; k++ {
				d.lowpassed[k] = 0
			}
		}

		if d.resamp_enabled {
			var want = d.lp_len*d.resamp_l/d.resamp_m + 2
			if len(resampled) < want {
				resampled = make([]float64, want)
			}
			var rn = resamp_block(d, d.lowpassed[:d.lp_len], resampled)
			ring_write_block(s.output, resampled[:rn])
		} else {
			ring_write_block(s.output, d.lowpassed[:d.lp_len])
		}
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        demod_output_rate
 *
 * Purpose:     The rate the consumer actually receives.
 *
 *--------------------------------------------------------------------*/

func demod_output_rate(d *demod_state_s) int {
	if d.cqpsk_enable {
		return int(float64(d.rate_out) / math.Max(d.ted_sps, 1)) /* symbols per second */
	}
	if d.resamp_enabled {
		return d.resamp_target
	}
	return d.rate_out / d.post_downsample
}

/* end demod.go */
