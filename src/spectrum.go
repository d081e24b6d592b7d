package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	Power-spectral-density snapshot of the post-filter
 *		complex baseband.
 *
 * Description:	The DSP worker feeds samples in; every time a full FFT
 *		window accumulates, a Hann-windowed PSD (dB, DC in the
 *		middle) is computed and swapped in atomically.  Readers
 *		(UI, autogain, auto-PPM) only ever see complete frames.
 *
 *---------------------------------------------------------------*/

import (
	"math"
	"math/cmplx"
	"sync/atomic"

	"gonum.org/v1/gonum/dsp/fourier"
)

const SPECTRUM_BINS = 1024

type spectrum_s struct {
	fft  *fourier.CmplxFFT
	hann []float64

	acc  []complex128
	fill int

	frame atomic.Pointer[[]float64] /* SPECTRUM_BINS of dB, DC centered */
	rate  atomic.Int64              /* sample rate the frame was taken at */
}

func spectrum_create() *spectrum_s {
	var sp = &spectrum_s{ //nolint:exhaustruct
		fft:  fourier.NewCmplxFFT(SPECTRUM_BINS),
		hann: make([]float64, SPECTRUM_BINS),
		acc:  make([]complex128, SPECTRUM_BINS),
	}
	for j := range sp.hann {
		sp.hann[j] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(j)/float64(SPECTRUM_BINS-1))
	}
	return sp
}

// spectrum_feed accumulates interleaved I,Q; called only from the DSP
// worker so there is no locking on the accumulation side.
func spectrum_feed(sp *spectrum_s, block []float64, rate int) {
	var pairs = len(block) / 2

	for p := 0; p < pairs; p++ {
		sp.acc[sp.fill] = complex(block[2*p], block[2*p+1])
		sp.fill++
		if sp.fill == SPECTRUM_BINS {
			spectrum_compute(sp, rate)
			sp.fill = 0
		}
	}
}

func spectrum_compute(sp *spectrum_s, rate int) {
	var in = make([]complex128, SPECTRUM_BINS)
	for j := range in {
		in[j] = sp.acc[j] * complex(sp.hann[j], 0)
	}

	var coeff = sp.fft.Coefficients(nil, in)

	var out = make([]float64, SPECTRUM_BINS)
	for j := range coeff {
		/* fft-shift so DC lands in the middle */
		var k = (j + SPECTRUM_BINS/2) % SPECTRUM_BINS
		var p = cmplx.Abs(coeff[j])
		p = p * p / float64(SPECTRUM_BINS)
		out[k] = 10 * math.Log10(p+1e-20)
	}

	sp.frame.Store(&out)
	sp.rate.Store(int64(rate))
}

/*-------------------------------------------------------------------
 *
 * Name:        spectrum_get
 *
 * Purpose:     Copy out the latest PSD frame.
 *
 * Returns:	Number of bins copied (0 when nothing captured yet)
 *		and the sample rate the frame was taken at.
 *
 *--------------------------------------------------------------------*/

func spectrum_get(sp *spectrum_s, out_db []float64, max_bins int) (int, int) {
	var frame = sp.frame.Load()
	if frame == nil {
		return 0, 0
	}
	var n = min(len(*frame), max_bins, len(out_db))
	copy(out_db[:n], (*frame)[:n])
	return n, int(sp.rate.Load())
}

/*-------------------------------------------------------------------
 *
 * Name:        spectrum_peak
 *
 * Purpose:     Peak search used by autogain and the PPM trainer: the
 *		strongest bin within +-span of center, plus a parabolic
 *		interpolation of the true peak position in fractional
 *		bins.
 *
 * Returns:	ok, fractional bin index, peak dB, and the larger of the
 *		two immediate neighbors' dB.
 *
 *--------------------------------------------------------------------*/

func spectrum_peak(psd []float64, span_bins int) (bool, float64, float64, float64) {
	var n = len(psd)
	if n < 8 {
		return false, 0, 0, 0
	}

	var center = n / 2
	var lo = max(1, center-span_bins)
	var hi = min(n-2, center+span_bins)

	var best = lo
	for j := lo; j <= hi; j++ {
		if psd[j] > psd[best] {
			best = j
		}
	}

	var neighbor = math.Max(psd[best-1], psd[best+1])

	/* Parabolic interpolation on log power. */
	var a = psd[best-1]
	var b = psd[best]
	var c = psd[best+1]
	var denom = a - 2*b + c
	var frac = 0.0
	if denom != 0 {
		frac = 0.5 * (a - c) / denom
		frac = clampf(frac, -0.5, 0.5)
	}

	return true, float64(best) + frac, b, neighbor
}

// Mean in-band (center +-n/8) vs total power ratio, linear domain.
func spectrum_inband_ratio(psd []float64) float64 {
	var n = len(psd)
	if n == 0 {
		return 0
	}
	var center = n / 2
	var total, inband float64
	for j, db := range psd {
		var p = math.Pow(10, db/10)
		total += p
		if j >= center-n/8 && j <= center+n/8 {
			inband += p
		}
	}
	if total <= 0 {
		return 0
	}
	return inband / total
}

// Spectral SNR: peak dB over the median-ish noise floor dB.
func spectrum_snr_db(psd []float64, peak_db float64) float64 {
	var n = len(psd)
	if n == 0 {
		return 0
	}
	var floor float64
	for _, db := range psd {
		floor += db
	}
	floor /= float64(n)
	return peak_db - floor
}

/* end spectrum.go */
