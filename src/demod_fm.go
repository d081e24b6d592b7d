package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	Analog / FSK demodulation path: IQ DC blocker, envelope
 *		AGC with optional hard limiter, polar discriminator,
 *		deemphasis and audio shaping.
 *
 * Description:	Everything here operates on the interleaved I,Q block in
 *		demod_state_s.lowpassed, except the discriminator which
 *		replaces it with a real-valued audio block (still stored
 *		in the same scratch slice, one scalar per sample).
 *
 *---------------------------------------------------------------*/

import (
	"math"
)

/*-------------------------------------------------------------------
 *
 * Name:        iq_dc_block
 *
 * Purpose:     Remove residual DC from both rails with a slow EMA whose
 *		alpha is 1 / 2^iq_dc_shift.
 *
 * Description:	On the first block after an enable or retune the
 *		estimator is precharged with the block mean, so there is
 *		no multi-second droop while the EMA winds up.  The FM
 *		AGC gain is retargeted at the same moment so apparent
 *		output level does not step.
 *
 *--------------------------------------------------------------------*/

func iq_dc_block(d *demod_state_s) {
	if !d.iq_dc_enabled {
		return
	}

	var pairs = d.lp_len / 2
	if pairs == 0 {
		return
	}

	var alpha = 1.0 / float64(int(1)<<uint(clampi(d.iq_dc_shift, 6, 15)))

	if !d.iq_dc_primed {
		var sum_i, sum_q float64
		for p := 0; p < pairs; p++ {
			sum_i += d.lowpassed[2*p]
			sum_q += d.lowpassed[2*p+1]
		}
		d.iq_dc_avg_i = sum_i / float64(pairs)
		d.iq_dc_avg_q = sum_q / float64(pairs)
		d.iq_dc_primed = true

		if d.fm_agc_enabled && d.fm_agc_rms_ema > d.fm_agc_min_rms {
			// Keep apparent level steady across the enable.
			var removed = math.Hypot(d.iq_dc_avg_i, d.iq_dc_avg_q)
			var remain = math.Max(d.fm_agc_rms_ema-removed, d.fm_agc_min_rms)
			d.fm_agc_gain = clampf(d.fm_agc_target_rms/remain, 0.125, 8.0)
		}
	}

	for p := 0; p < pairs; p++ {
		var i = d.lowpassed[2*p]
		var q = d.lowpassed[2*p+1]
		d.iq_dc_avg_i += alpha * (i - d.iq_dc_avg_i)
		d.iq_dc_avg_q += alpha * (q - d.iq_dc_avg_q)
		d.lowpassed[2*p] = i - d.iq_dc_avg_i
		d.lowpassed[2*p+1] = q - d.iq_dc_avg_q
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        iq_balance
 *
 * Purpose:     Equalize rail amplitudes.  Cheap gain-only correction:
 *		track the I/Q power ratio with a slow EMA and scale the
 *		Q rail toward parity.  Phase skew is left to the tuner.
 *
 *--------------------------------------------------------------------*/

func iq_balance(d *demod_state_s) {
	if !d.iq_balance_enabled {
		return
	}

	var pairs = d.lp_len / 2
	if pairs == 0 {
		return
	}

	var pi, pq float64
	for p := 0; p < pairs; p++ {
		pi += d.lowpassed[2*p] * d.lowpassed[2*p]
		pq += d.lowpassed[2*p+1] * d.lowpassed[2*p+1]
	}
	if pq <= 0 {
		return
	}

	var ratio = math.Sqrt(pi / pq)
	d.iq_balance_ratio += 0.02 * (ratio - d.iq_balance_ratio)

	var g = clampf(d.iq_balance_ratio, 0.5, 2.0)
	for p := 0; p < pairs; p++ {
		d.lowpassed[2*p+1] *= g
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        fm_agc
 *
 * Purpose:     Normalize envelope ahead of the discriminator.
 *
 * Description:	Per-block RMS feeds an EMA; gain chases
 *		target_rms / max(rms, min_rms) with a fast attack when
 *		gain must rise and a slow release when it must fall.
 *		Gain is clamped to [1/8, 8].  The optional limiter then
 *		clips magnitude at unity, which strips AM junk that the
 *		discriminator would otherwise read as noise.
 *
 *--------------------------------------------------------------------*/

func fm_agc(d *demod_state_s) {
	if !d.fm_agc_enabled {
		return
	}

	var pairs = d.lp_len / 2
	if pairs == 0 {
		return
	}

	var sum float64
	for p := 0; p < pairs; p++ {
		var i = d.lowpassed[2*p]
		var q = d.lowpassed[2*p+1]
		sum += i*i + q*q
	}
	var rms = math.Sqrt(sum / float64(pairs))

	if d.fm_agc_rms_ema == 0 {
		d.fm_agc_rms_ema = rms
	} else {
		d.fm_agc_rms_ema += 0.2 * (rms - d.fm_agc_rms_ema)
	}

	var want = d.fm_agc_target_rms / math.Max(d.fm_agc_rms_ema, d.fm_agc_min_rms)
	want = clampf(want, 0.125, 8.0)

	var alpha = IfThenElse(want > d.fm_agc_gain, d.fm_agc_alpha_up, d.fm_agc_alpha_down)
	d.fm_agc_gain += alpha * (want - d.fm_agc_gain)

	for k := 0; k < d.lp_len; k++ {
		d.lowpassed[k] *= d.fm_agc_gain
	}

	if d.fm_limiter_on {
		for p := 0; p < pairs; p++ {
			var i = d.lowpassed[2*p]
			var q = d.lowpassed[2*p+1]
			var mag = math.Hypot(i, q)
			if mag > 1.0 {
				d.lowpassed[2*p] = i / mag
				d.lowpassed[2*p+1] = q / mag
			}
		}
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        fm_discriminate
 *
 * Purpose:     Polar discriminator: y[n] = arg(x[n] * conj(x[n-1])) / pi.
 *
 * Description:	The one-sample memory lives in demod state so phase is
 *		continuous across blocks.  The block shrinks from
 *		interleaved pairs to one scalar per sample.
 *
 *--------------------------------------------------------------------*/

func fm_discriminate(d *demod_state_s) {
	var pairs = d.lp_len / 2
	var prev = d.fm_prev

	for p := 0; p < pairs; p++ {
		var cur = complex(d.lowpassed[2*p], d.lowpassed[2*p+1])
		var y = cur * cmplx_conj(prev)
		d.lowpassed[p] = math.Atan2(imag(y), real(y)) / math.Pi
		prev = cur
	}

	d.fm_prev = prev
	d.lp_len = pairs
}

func cmplx_conj(c complex128) complex128 {
	return complex(real(c), -imag(c))
}

/*-------------------------------------------------------------------
 *
 * Name:        fm_audio_shape
 *
 * Purpose:     Deemphasis and audio lowpass, both one-pole, then the
 *		optional integer post-decimation.
 *
 *--------------------------------------------------------------------*/

func fm_audio_shape(d *demod_state_s) {

	if d.deemph_alpha > 0 {
		var y = d.deemph_state
		for k := 0; k < d.lp_len; k++ {
			y += d.deemph_alpha * (d.lowpassed[k] - y)
			d.lowpassed[k] = y
		}
		d.deemph_state = y
	}

	if d.audio_lpf_alpha > 0 {
		var y = d.audio_lpf_state
		for k := 0; k < d.lp_len; k++ {
			y += d.audio_lpf_alpha * (d.lowpassed[k] - y)
			d.lowpassed[k] = y
		}
		d.audio_lpf_state = y
	}

	if d.post_downsample > 1 {
		var n = 0
		for k := 0; k+d.post_downsample <= d.lp_len; k += d.post_downsample {
			var acc float64
			for j := 0; j < d.post_downsample; j++ {
				acc += d.lowpassed[k+j]
			}
			d.lowpassed[n] = acc / float64(d.post_downsample)
			n++
		}
		d.lp_len = n
	}
}

/* end demod_fm.go */
