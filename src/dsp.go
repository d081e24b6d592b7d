package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:     Generate the filters used by the demodulator chain, and
 *		the block-filter kernels that apply them.
 *
 *----------------------------------------------------------------*/

import (
	"math"
	"math/cmplx"
)

type bp_window_t int

const (
	BP_WINDOW_TRUNCATED bp_window_t = iota
	BP_WINDOW_COSINE
	BP_WINDOW_HAMMING
	BP_WINDOW_BLACKMAN
	BP_WINDOW_FLATTOP
)

/*------------------------------------------------------------------
 *
 * Name:        window
 *
 * Purpose:     Filter window shape functions.
 *
 * Inputs:   	type	- BP_WINDOW_HAMMING, etc.
 *		size	- Number of filter taps.
 *		j	- Index in range of 0 to size-1.
 *
 * Returns:     Multiplier for the window shape.
 *
 *----------------------------------------------------------------*/

func window(windowType bp_window_t, _size int, _j int) float64 {

	var size = float64(_size)
	var j = float64(_j)

	var center = 0.5 * (size - 1)
	var w float64

	switch windowType {

	case BP_WINDOW_COSINE:
		w = math.Cos(float64(j-center) / size * math.Pi)

	case BP_WINDOW_HAMMING:
		w = 0.53836 - 0.46164*math.Cos((j*2*math.Pi)/(size-1))

	case BP_WINDOW_BLACKMAN:
		w = 0.42659 - 0.49656*math.Cos((j*2*math.Pi)/(size-1)) +
			0.076849*math.Cos((j*4*math.Pi)/(size-1))

	case BP_WINDOW_FLATTOP:
		w = 1.0 - 1.93*math.Cos((j*2*math.Pi)/(size-1)) +
			1.29*math.Cos((j*4*math.Pi)/(size-1)) -
			0.388*math.Cos((j*6*math.Pi)/(size-1)) +
			0.028*math.Cos((j*8*math.Pi)/(size-1))

	case BP_WINDOW_TRUNCATED:
		fallthrough
	default:
		w = 1.0
	}

	return w
}

/*------------------------------------------------------------------
 *
 * Name:        gen_lowpass
 *
 * Purpose:     Generate low pass filter kernel.
 *
 * Inputs:   	fc		- Cutoff frequency as fraction of sampling frequency.
 *		filter_size	- Number of filter taps.
 *		wtype		- Window type, BP_WINDOW_HAMMING, etc.
 *
 * Outputs:     lp_filter
 *
 *----------------------------------------------------------------*/

func gen_lowpass(fc float64, lp_filter []float64, filter_size int, wtype bp_window_t) {

	Assert(filter_size >= 3 && filter_size <= MAX_FILTER_SIZE)

	for j := 0; j < filter_size; j++ {
		var sinc float64

		var center = 0.5 * float64(filter_size-1)

		if float64(j)-center == 0 {
			sinc = 2 * fc
		} else {
			sinc = math.Sin(2*math.Pi*(fc*(float64(j)-center))) / (math.Pi * (float64(j) - center))
		}

		var shape = window(wtype, filter_size, j)
		lp_filter[j] = sinc * shape
	}

	/*
	 * Normalize lowpass for unity gain at DC.
	 */
	var G float64 = 0
	for j := 0; j < filter_size; j++ {
		G += lp_filter[j]
	}
	for j := 0; j < filter_size; j++ {
		lp_filter[j] /= G
	}
} /* end gen_lowpass */

/*------------------------------------------------------------------
 *
 * Name:        rrc
 *
 * Purpose:     Root Raised Cosine function.
 *		It's mostly the sinc function with cos windowing to taper off edges faster.
 *
 * Inputs:      t		- Time in units of symbol duration.
 *		a		- Roll off factor, between 0 and 1.
 *
 * Returns:	Should be 1 for t = 0 and 0 at all other integer values of t.
 *
 *----------------------------------------------------------------*/

func rrc(t float64, a float64) float64 {

	var sinc, window, result float64

	if t > -0.001 && t < 0.001 {
		sinc = 1
	} else {
		sinc = math.Sin(math.Pi*t) / (math.Pi * t)
	}

	if math.Abs(a*t) > 0.499 && math.Abs(a*t) < 0.501 {
		window = math.Pi / 4
	} else {
		window = math.Cos(math.Pi*float64(a)*float64(t)) / (1 - math.Pow(2*float64(a)*float64(t), 2))
	}

	result = sinc * window

	return (result)
}

// The Root Raised Cosine (RRC) low pass filter is supposed to minimize
// Intersymbol Interference (ISI).

func gen_rrc_lowpass(pfilter []float64, filter_taps int, rolloff float64, samples_per_symbol float64) {
	var t float64

	for k := 0; k < filter_taps; k++ {
		t = (float64(k) - ((float64(filter_taps) - 1.0) / 2.0)) / samples_per_symbol
		pfilter[k] = rrc(t, rolloff)
	}

	// Scale it for unity gain.

	t = 0
	for k := 0; k < filter_taps; k++ {
		t += pfilter[k]
	}
	for k := 0; k < filter_taps; k++ {
		pfilter[k] /= t
	}
}

/*------------------------------------------------------------------
 *
 * Halfband decimator.
 *
 * A fixed 15-tap symmetric halfband kernel.  Every other tap is zero
 * except the center, which is what makes 2:1 decimation with it cheap.
 *
 *----------------------------------------------------------------*/

var halfband_taps = gen_halfband(15)

func gen_halfband(taps int) []float64 {
	Assert(taps%4 == 3) /* odd length with odd-indexed structural zeros */

	var h = make([]float64, taps)
	gen_lowpass(0.25, h, taps, BP_WINDOW_HAMMING)

	// Force the structural zeros exact.  The windowed design leaves
	// tiny nonzero values there; the decimator assumes they are zero.
	var center = taps / 2
	for j := range h {
		if j != center && (j-center)%2 == 0 {
			h[j] = 0
		}
	}

	// Renormalize for unity DC gain.
	var g float64
	for _, v := range h {
		g += v
	}
	for j := range h {
		h[j] /= g
	}
	return h
}

/*------------------------------------------------------------------
 *
 * Name:        halfband_decim2
 *
 * Purpose:     One 2:1 decimation pass over an interleaved I,Q block.
 *
 * Inputs:	in	- Interleaved scalars.
 *		hist	- Stage-local history of 2*(taps-1) scalars,
 *			  carried across blocks.
 *
 * Outputs:	out	- Half as many pairs.  May alias the front of in.
 *
 * Returns:	Number of scalars produced.
 *
 *----------------------------------------------------------------*/

func halfband_decim2(in []float64, out []float64, hist []float64) int {
	var taps = len(halfband_taps)
	var pairs_in = len(in) / 2
	var pairs_out = pairs_in / 2

	/* History followed by the block. */
	var work = make([]float64, len(hist)+len(in))
	copy(work, hist)
	copy(work[len(hist):], in)

	var n = 0
	for p := 0; p < pairs_out; p++ {
		var base = p * 4 /* 2 input pairs consumed per output pair */
		var acc_i, acc_q float64
		for j := 0; j < taps; j++ {
			var c = halfband_taps[j]
			if c == 0 {
				continue
			}
			acc_i += c * work[base+2*j]
			acc_q += c * work[base+2*j+1]
		}
		out[n] = acc_i
		out[n+1] = acc_q
		n += 2
	}

	/* Save the tail for the next block. */
	copy(hist, work[len(work)-len(hist):])

	return n
}

/*------------------------------------------------------------------
 *
 * Name:        fir_apply_complex
 *
 * Purpose:     Block FIR on interleaved I,Q with separate I/Q history
 *		slices carried across blocks.  In-place on the block.
 *
 *----------------------------------------------------------------*/

func fir_apply_complex(block []float64, taps []float64, hist_i []float64, hist_q []float64) {
	var nt = len(taps)
	var pairs = len(block) / 2

	var wi = make([]float64, len(hist_i)+pairs)
	var wq = make([]float64, len(hist_q)+pairs)
	copy(wi, hist_i)
	copy(wq, hist_q)
	for p := 0; p < pairs; p++ {
		wi[len(hist_i)+p] = block[2*p]
		wq[len(hist_q)+p] = block[2*p+1]
	}

	for p := 0; p < pairs; p++ {
		var acc_i, acc_q float64
		for j := 0; j < nt; j++ {
			acc_i += taps[j] * wi[p+j]
			acc_q += taps[j] * wq[p+j]
		}
		block[2*p] = acc_i
		block[2*p+1] = acc_q
	}

	copy(hist_i, wi[len(wi)-len(hist_i):])
	copy(hist_q, wq[len(wq)-len(hist_q):])
}

/*------------------------------------------------------------------
 *
 * Name:        fll_design_taps
 *
 * Purpose:     Band-edge filter pair for the FLL, centered at plus and
 *		minus half the symbol rate.  Redesigned at every retune
 *		reset, from the SPS in force before any pending override
 *		is applied, and when cold start reconciles the rates.
 *
 *----------------------------------------------------------------*/

const FLL_BAND_EDGE_TAPS = 33

func fll_design_taps(d *demod_state_s) {
	var sps = demod_nominal_sps(d)
	if sps < 2 {
		sps = 2
	}

	/* Prototype: RRC edge response sampled across the filter span. */
	var proto = make([]float64, FLL_BAND_EDGE_TAPS)
	gen_rrc_lowpass(proto, FLL_BAND_EDGE_TAPS, 0.35, sps)

	d.fll_taps_up = make([]complex128, FLL_BAND_EDGE_TAPS)
	d.fll_taps_dn = make([]complex128, FLL_BAND_EDGE_TAPS)

	var w = math.Pi / sps /* half the symbol rate, rad/sample */
	var center = float64(FLL_BAND_EDGE_TAPS-1) / 2
	for j := 0; j < FLL_BAND_EDGE_TAPS; j++ {
		var ph = w * (float64(j) - center)
		d.fll_taps_up[j] = complex(proto[j], 0) * cmplx.Exp(complex(0, ph))
		d.fll_taps_dn[j] = complex(proto[j], 0) * cmplx.Exp(complex(0, -ph))
	}

	if d.fll_hist == nil || len(d.fll_hist) != FLL_BAND_EDGE_TAPS-1 {
		d.fll_hist = make([]complex128, FLL_BAND_EDGE_TAPS-1)
	}
}

/* end dsp.go */
