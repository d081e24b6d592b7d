package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	Rational polyphase resampler for the FM audio path.
 *
 * Description:	Classic L-up / M-down conversion without ever building
 *		the upsampled stream: one prototype lowpass is designed
 *		at the upsampled rate and scattered into L sub-filters,
 *		one per output phase.  Each output sample is a single
 *		short convolution against the input history.
 *
 *		The ratio comes from gcd(target, rate_out).  A scale
 *		factor (L or M) above 12 means an unreasonable tap count
 *		per output sample, so the resampler refuses and the
 *		stream continues at its native rate.
 *
 *---------------------------------------------------------------*/

const RESAMP_TAPS_PER_PHASE = 8
const RESAMP_MAX_SCALE = 12

/*-------------------------------------------------------------------
 *
 * Name:        resamp_design
 *
 * Purpose:     Work out L/M for the configured target and build the
 *		polyphase bank.  Called at cold start and again after a
 *		retune whenever the quantized rate changed.
 *
 * Returns:	true when the resampler is usable.
 *
 *--------------------------------------------------------------------*/

func resamp_design(d *demod_state_s) bool {
	d.resamp_enabled = false

	if d.resamp_target <= 0 || d.resamp_target == d.rate_out || d.cqpsk_enable {
		return false
	}

	var g = gcd(d.resamp_target, d.rate_out)
	var l = d.resamp_target / g
	var m = d.rate_out / g

	if l > RESAMP_MAX_SCALE || m > RESAMP_MAX_SCALE {
		if !d.resamp_warned {
			text_color_set(TC_COLOR_ERROR)
			tc_printf("Resampler %d -> %d needs %d/%d, too steep; staying at native rate.\n",
				d.rate_out, d.resamp_target, l, m)
			d.resamp_warned = true
		}
		return false
	}

	d.resamp_l = l
	d.resamp_m = m

	/* Prototype at the upsampled rate.  Cut at the narrower of the
	 * two Nyquists with a little margin. */
	var taps = l * RESAMP_TAPS_PER_PHASE
	if taps < 3 {
		taps = 3
	}
	var fc = 0.45 / float64(max(l, m))
	var proto = make([]float64, taps)
	gen_lowpass(fc, proto, taps, BP_WINDOW_HAMMING)

	/* Scatter across phases, with gain L so unity-amplitude signals
	 * survive the zero-stuffing model. */
	d.resamp_taps = make([][]float64, l)
	for ph := 0; ph < l; ph++ {
		d.resamp_taps[ph] = make([]float64, RESAMP_TAPS_PER_PHASE)
		for j := 0; j < RESAMP_TAPS_PER_PHASE; j++ {
			var k = j*l + ph
			if k < taps {
				d.resamp_taps[ph][j] = proto[k] * float64(l)
			}
		}
	}

	d.resamp_hist = make([]float64, RESAMP_TAPS_PER_PHASE-1)
	d.resamp_phase = 0
	d.resamp_enabled = true
	return true
}

/*-------------------------------------------------------------------
 *
 * Name:        resamp_block
 *
 * Purpose:     Convert a real-valued block.  Returns the converted
 *		samples in out, count as the return value.
 *
 * Description:	Conceptually each input sample contributes L upsampled
 *		positions; we emit at every M-th position.  The phase
 *		counter survives across blocks so the output clock has
 *		no seams.
 *
 *--------------------------------------------------------------------*/

func resamp_block(d *demod_state_s, in []float64, out []float64) int {
	if !d.resamp_enabled {
		var n = copy(out, in)
		return n
	}

	var hl = len(d.resamp_hist)
	var work = make([]float64, hl+len(in))
	copy(work, d.resamp_hist)
	copy(work[hl:], in)

	var n = 0
	for s := 0; s < len(in); s++ {
		/* Upsampled positions covered by input sample s are
		 * s*L .. s*L+L-1.  resamp_phase is the next position we
		 * owe an output for, modulo the running stream. */
		for ; d.resamp_phase < d.resamp_l; d.resamp_phase += d.resamp_m {
			var ph = d.resamp_phase
			var tapset = d.resamp_taps[ph]
			var acc float64
			for j := 0; j < len(tapset); j++ {
				acc += tapset[j] * work[s+hl-j]
			}
			if n < len(out) {
				out[n] = acc
				n++
			}
		}
		d.resamp_phase -= d.resamp_l
	}

	copy(d.resamp_hist, work[len(work)-hl:])
	return n
}

/* end resamp.go */
