package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	Phase-shift-keyed path: band-edge FLL, Gardner timing
 *		recovery, Costas carrier loop, and the one-symbol
 *		differential demodulator.
 *
 * Description:	Input is the channel-filtered interleaved I,Q block at
 *		rate_in.  Output is one complex symbol per entry,
 *		written back into the scratch block as interleaved I,Q.
 *		No resampling happens downstream of this path; the
 *		consumer gets exactly one entry per recovered symbol.
 *
 *---------------------------------------------------------------*/

import (
	"math"
	"math/cmplx"
)

/*-------------------------------------------------------------------
 *
 * Name:        fll_process
 *
 * Purpose:     Frequency-locked loop over the block, in place.
 *
 * Description:	Each sample is spun by the NCO, then pushed through two
 *		band-edge filters centered at plus and minus half the
 *		symbol rate.  The imbalance between the edges is the
 *		frequency error:
 *
 *			e = Im{ y+ * conj(y-) * conj(x) }
 *
 *		The integrator tracks residual carrier in rad/sample.
 *
 *--------------------------------------------------------------------*/

func fll_process(d *demod_state_s) {
	if !d.fll_enabled {
		return
	}

	var pairs = d.lp_len / 2
	var nh = len(d.fll_hist)

	for p := 0; p < pairs; p++ {
		var x = complex(d.lowpassed[2*p], d.lowpassed[2*p+1])
		var v = x * cmplx.Exp(complex(0, -d.fll_phase))

		/* Shift the band-edge delay line. */
		copy(d.fll_hist, d.fll_hist[1:])
		d.fll_hist[nh-1] = v

		var y_up, y_dn complex128
		for j := 0; j < nh; j++ {
			y_up += d.fll_taps_up[j] * d.fll_hist[nh-1-j]
			y_dn += d.fll_taps_dn[j] * d.fll_hist[nh-1-j]
		}
		d.fll_prev_up = y_up
		d.fll_prev_dn = y_dn

		var e = imag(y_up * cmplx_conj(y_dn) * cmplx_conj(v))
		e = clampf(e, -1.0, 1.0)

		d.fll_freq += d.fll_beta * e
		d.fll_freq = clampf(d.fll_freq, -0.5, 0.5)
		d.fll_phase += d.fll_freq + d.fll_alpha*e
		if d.fll_phase > math.Pi {
			d.fll_phase -= 2 * math.Pi
		} else if d.fll_phase < -math.Pi {
			d.fll_phase += 2 * math.Pi
		}

		d.lowpassed[2*p] = real(v)
		d.lowpassed[2*p+1] = imag(v)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        gardner_ted
 *
 * Purpose:     Clock recovery.  Consumes the block at rate_in and
 *		produces one complex sample per symbol.
 *
 * Description:	mu advances by one per input sample; when it crosses the
 *		running omega (nominal samples per symbol) a symbol is
 *		struck, linearly interpolated at the fractional instant.
 *		The Gardner error
 *
 *			e = Re{ y[mid] * (y[now] - y[prev]) }
 *
 *		nudges mu directly and omega a little, and its EMA is
 *		exported as the timing bias diagnostic.
 *
 * Returns:	Recovered symbols, one complex per entry.
 *
 *--------------------------------------------------------------------*/

func gardner_ted(d *demod_state_s, out []complex128) int {
	var pairs = d.lp_len / 2
	var n = 0

	if !d.ted_enabled {
		/* Pass through decimated by nominal SPS so downstream still
		 * sees roughly one entry per symbol. */
		var step = int(d.ted_sps)
		if step < 1 {
			step = 1
		}
		for p := 0; p < pairs; p += step {
			out[n] = complex(d.lowpassed[2*p], d.lowpassed[2*p+1])
			n++
		}
		return n
	}

	var nd = len(d.ted_delay)

	for p := 0; p < pairs; p++ {
		var x = complex(d.lowpassed[2*p], d.lowpassed[2*p+1])

		copy(d.ted_delay, d.ted_delay[1:])
		d.ted_delay[nd-1] = x
		if d.ted_delay_fill < nd {
			d.ted_delay_fill++
		}

		d.ted_mu += 1.0
		if d.ted_mu < d.ted_omega || d.ted_delay_fill < nd {
			continue
		}
		d.ted_mu -= d.ted_omega

		/* Interpolate current symbol and the half-symbol-earlier
		 * sample out of the delay line. */
		var frac = d.ted_mu
		var y_now = ted_interp(d.ted_delay, float64(nd-1)-frac)
		var y_mid = ted_interp(d.ted_delay, float64(nd-1)-frac-d.ted_omega/2)

		if n > 0 || d.ted_delay_fill == nd {
			var y_prev complex128
			if n > 0 {
				y_prev = out[n-1]
			}
			var e = real(y_mid * (y_now - y_prev))
			e = clampf(e, -1.0, 1.0)

			d.ted_e_ema += 0.05 * (e - d.ted_e_ema)

			if !d.ted_force {
				d.ted_mu += d.ted_gain * e
				d.ted_omega += 0.25 * d.ted_gain * d.ted_gain * e
				/* Keep omega tethered to the nominal clock. */
				d.ted_omega = clampf(d.ted_omega, d.ted_sps*0.95, d.ted_sps*1.05)
			}
		}

		out[n] = y_now
		n++
		if n >= len(out) {
			break
		}
	}

	return n
}

func ted_interp(delay []complex128, pos float64) complex128 {
	if pos <= 0 {
		return delay[0]
	}
	var i = int(pos)
	if i >= len(delay)-1 {
		return delay[len(delay)-1]
	}
	var frac = complex(pos-float64(i), 0)
	return delay[i]*(1-frac) + delay[i+1]*frac
}

/*-------------------------------------------------------------------
 *
 * Name:        costas_differential
 *
 * Purpose:     Carrier recovery plus differential decode, symbol rate.
 *
 * Description:	Each symbol is spun by the Costas NCO, the sign-based
 *		QPSK decision error updates the loop, and the result is
 *		multiplied by the conjugate of the previous corrected
 *		symbol.  diff_prev starts at (1+0i) after every reset so
 *		the first symbol passes through unchanged.
 *
 *--------------------------------------------------------------------*/

func costas_differential(d *demod_state_s, syms []complex128, n int) {

	for k := 0; k < n; k++ {
		var v = syms[k] * cmplx.Exp(complex(0, -d.costas_phase))

		var e = sgn(real(v))*imag(v) - sgn(imag(v))*real(v)
		e = clampf(e, -1.0, 1.0)
		d.costas_error = e

		d.costas_freq += d.costas_beta * e
		d.costas_freq = clampf(d.costas_freq, -0.2, 0.2)
		d.costas_phase += d.costas_freq + d.costas_alpha*e
		if d.costas_phase > math.Pi {
			d.costas_phase -= 2 * math.Pi
		} else if d.costas_phase < -math.Pi {
			d.costas_phase += 2 * math.Pi
		}

		var y = v * cmplx_conj(d.diff_prev)
		d.diff_prev = v

		d.lowpassed[2*k] = real(y)
		d.lowpassed[2*k+1] = imag(y)
	}

	d.lp_len = 2 * n
}

func sgn(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

/*-------------------------------------------------------------------
 *
 * Name:        cqpsk_demod
 *
 * Purpose:     The whole PSK back half: matched filter, FLL, timing,
 *		carrier, differential.  Replaces the scratch block with
 *		interleaved symbols.
 *
 *--------------------------------------------------------------------*/

func cqpsk_demod(d *demod_state_s) {

	if d.mf_enabled {
		fir_apply_complex(d.lowpassed[:d.lp_len], d.rrc_taps, d.rrc_hist_i, d.rrc_hist_q)
	}

	fll_process(d)

	var syms = make([]complex128, d.lp_len/2+1)
	var n = gardner_ted(d, syms)

	costas_differential(d, syms, n)
}

/* end demod_cqpsk.go */
