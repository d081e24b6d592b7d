package borzoi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenLowpassUnityDCGain(t *testing.T) {
	var taps = make([]float64, 31)
	gen_lowpass(0.1, taps, 31, BP_WINDOW_HAMMING)

	var sum float64
	for _, v := range taps {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestHalfbandStructuralZeros(t *testing.T) {
	var h = halfband_taps
	var center = len(h) / 2

	for j := range h {
		if j != center && (j-center)%2 == 0 {
			assert.Zero(t, h[j], "tap %d should be a structural zero", j)
		}
	}

	var sum float64
	for _, v := range h {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestHalfbandDecimatePassesDC(t *testing.T) {
	var hist = make([]float64, 2*(len(halfband_taps)-1))

	// Constant complex input (DC) should come through at half the
	// pairs with the same value once history fills.
	var in = make([]float64, 256)
	for p := 0; p < 128; p++ {
		in[2*p] = 0.5
		in[2*p+1] = -0.25
	}

	var out = make([]float64, 256)
	var n = halfband_decim2(in, out, hist)
	require.Equal(t, 128, n)

	// Second block: history is charged, output is settled.
	n = halfband_decim2(in, out, hist)
	require.Equal(t, 128, n)
	for p := 10; p < 64; p++ {
		assert.InDelta(t, 0.5, out[2*p], 1e-6)
		assert.InDelta(t, -0.25, out[2*p+1], 1e-6)
	}
}

func TestHalfbandDecimateRejectsNyquist(t *testing.T) {
	var hist = make([]float64, 2*(len(halfband_taps)-1))

	// A tone at the input Nyquist aliases to DC after 2:1 decimation
	// unless the halfband removes it first.
	var in = make([]float64, 512)
	for p := 0; p < 256; p++ {
		var s = 1.0
		if p%2 == 1 {
			s = -1.0
		}
		in[2*p] = s
		in[2*p+1] = s
	}

	var out = make([]float64, 512)
	halfband_decim2(in, out, hist)
	var n = halfband_decim2(in, out, hist)

	for p := 10; p < n/2; p++ {
		assert.Less(t, math.Abs(out[2*p]), 0.05, "Nyquist tone leaked through at pair %d", p)
	}
}

func TestFIRApplyComplexHistoryContinuity(t *testing.T) {
	var taps = make([]float64, 15)
	gen_lowpass(0.2, taps, 15, BP_WINDOW_HAMMING)

	// One long block vs the same data in two halves must agree.
	var long = make([]float64, 400)
	for k := range long {
		long[k] = math.Sin(float64(k) * 0.05)
	}
	var split = make([]float64, 400)
	copy(split, long)

	var h1i = make([]float64, 14)
	var h1q = make([]float64, 14)
	fir_apply_complex(long, taps, h1i, h1q)

	var h2i = make([]float64, 14)
	var h2q = make([]float64, 14)
	fir_apply_complex(split[:200], taps, h2i, h2q)
	fir_apply_complex(split[200:], taps, h2i, h2q)

	for k := range long {
		assert.InDelta(t, long[k], split[k], 1e-12, "mismatch at %d", k)
	}
}

func TestGenRRCNyquistZeros(t *testing.T) {
	// RRC impulse response is 1 at t=0 and ~0 at other symbol centers
	// before normalization; after normalization the ratios hold.
	var sps = 4.0
	var taps = make([]float64, 33)
	gen_rrc_lowpass(taps, 33, 0.2, sps)

	var center = 16
	for k := 1; k <= 3; k++ {
		var off = int(float64(k) * sps)
		assert.Less(t, math.Abs(taps[center+off]), math.Abs(taps[center])*0.05,
			"RRC should nearly vanish %d symbols out", k)
	}
}

func TestFLLDesignTaps(t *testing.T) {
	var cfg = config_from_env(Options{Freqs: []int64{446000000}, CQPSK: true}) //nolint:exhaustruct
	var d = demod_init_state(cfg)

	require.Len(t, d.fll_taps_up, FLL_BAND_EDGE_TAPS)
	require.Len(t, d.fll_taps_dn, FLL_BAND_EDGE_TAPS)

	// The two edges are conjugate mirrors of each other.
	for j := range d.fll_taps_up {
		assert.InDelta(t, real(d.fll_taps_up[j]), real(d.fll_taps_dn[j]), 1e-12)
		assert.InDelta(t, imag(d.fll_taps_up[j]), -imag(d.fll_taps_dn[j]), 1e-12)
	}
}
