package borzoi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func test_stream_for(d *demod_state_s) *Stream {
	return &Stream{ //nolint:exhaustruct
		demod:    d,
		metrics:  metrics_create(),
		scope:    scope_create(),
		spectrum: spectrum_create(),
		ctrl:     controller_create([]int64{446000000}),
	}
}

func fm_test_state(t *testing.T) *demod_state_s {
	t.Helper()
	var cfg = config_from_env(Options{ //nolint:exhaustruct
		Freqs:   []int64{446000000},
		RateIn:  32000,
		RateOut: 32000,
	})
	return demod_init_state(cfg)
}

func TestPolarDiscriminatorConstantTone(t *testing.T) {
	var d = fm_test_state(t)

	// Tone at +2 kHz in a 32 kHz baseband: the discriminator output
	// should be the constant 2*f/fs = 0.125.
	var pairs = 512
	d.lowpassed = make([]float64, 2*pairs)
	for p := 0; p < pairs; p++ {
		var ph = 2 * math.Pi * 2000 * float64(p) / 32000
		d.lowpassed[2*p] = math.Cos(ph)
		d.lowpassed[2*p+1] = math.Sin(ph)
	}
	d.lp_len = 2 * pairs

	fm_discriminate(d)

	require.Equal(t, pairs, d.lp_len)
	for k := 4; k < d.lp_len; k++ {
		assert.InDelta(t, 0.125, d.lowpassed[k], 1e-9)
	}
}

func TestDiscriminatorPhaseContinuityAcrossBlocks(t *testing.T) {
	var d = fm_test_state(t)

	var gen = func(start, pairs int) []float64 {
		var out = make([]float64, 2*pairs)
		for p := 0; p < pairs; p++ {
			var ph = 2 * math.Pi * 1000 * float64(start+p) / 32000
			out[2*p] = math.Cos(ph)
			out[2*p+1] = math.Sin(ph)
		}
		return out
	}

	d.lowpassed = gen(0, 64)
	d.lp_len = 128
	fm_discriminate(d)

	// Second block continues the phase; even the first output sample
	// should be on value because fm_prev carried over.
	d.lowpassed = gen(64, 64)
	d.lp_len = 128
	fm_discriminate(d)

	assert.InDelta(t, 2.0*1000/32000, d.lowpassed[0], 1e-9)
}

func TestFMAGCGainClamp(t *testing.T) {
	var d = fm_test_state(t)
	d.fm_agc_enabled = true

	// Tiny input drives the gain up but never past 8x.
	d.lowpassed = make([]float64, 512)
	for k := range d.lowpassed {
		d.lowpassed[k] = 0.001
	}
	d.lp_len = 512

	for i := 0; i < 50; i++ {
		fm_agc(d)
		for k := range d.lowpassed[:d.lp_len] {
			d.lowpassed[k] = 0.001
		}
	}

	assert.LessOrEqual(t, d.fm_agc_gain, 8.0)
	assert.Greater(t, d.fm_agc_gain, 1.0)
}

func TestFMLimiterClampsMagnitude(t *testing.T) {
	var d = fm_test_state(t)
	d.fm_agc_enabled = true
	d.fm_limiter_on = true

	d.lowpassed = []float64{5, 5, -4, 3, 0.1, 0.1}
	d.lp_len = 6

	fm_agc(d)

	for p := 0; p < 3; p++ {
		var mag = math.Hypot(d.lowpassed[2*p], d.lowpassed[2*p+1])
		assert.LessOrEqual(t, mag, 1.0+1e-9)
	}
}

func TestIQDCBlockRemovesOffset(t *testing.T) {
	var d = fm_test_state(t)
	d.iq_dc_enabled = true
	d.iq_dc_shift = 6

	var pairs = 2048
	d.lowpassed = make([]float64, 2*pairs)
	for p := 0; p < pairs; p++ {
		d.lowpassed[2*p] = 0.2 + 0.01*math.Sin(float64(p))
		d.lowpassed[2*p+1] = -0.1
	}
	d.lp_len = 2 * pairs

	iq_dc_block(d)

	var sum_i, sum_q float64
	for p := pairs / 2; p < pairs; p++ {
		sum_i += d.lowpassed[2*p]
		sum_q += d.lowpassed[2*p+1]
	}
	assert.InDelta(t, 0, sum_i/float64(pairs/2), 0.01)
	assert.InDelta(t, 0, sum_q/float64(pairs/2), 0.01)
}

/*
 * The FM passthrough scenario: a +2 kHz tone at a 1.024 MHz capture
 * rate, five halfband passes down to 32 kHz, discriminated to a steady
 * near-DC value, then resampled 32k -> 48k.
 */
func TestFullDemodFMPassthrough(t *testing.T) {
	var cfg = config_from_env(Options{ //nolint:exhaustruct
		Freqs:          []int64{446000000},
		RateIn:         32000,
		RateOut:        32000,
		ResampTargetHz: 48000,
	})
	var d = demod_init_state(cfg)
	d.downsample_passes = 5
	d.capture_rate = 1024000

	require.True(t, resamp_design(d))
	assert.Equal(t, 3, d.resamp_l)
	assert.Equal(t, 2, d.resamp_m)
	assert.Equal(t, 48000, demod_output_rate(d))

	var s = test_stream_for(d)

	var run_block = func(start, pairs int) []float64 {
		d.lowpassed = make([]float64, 2*pairs)
		for p := 0; p < pairs; p++ {
			var ph = 2 * math.Pi * 2000 * float64(start+p) / 1024000
			d.lowpassed[2*p] = 0.7 * math.Cos(ph)
			d.lowpassed[2*p+1] = 0.7 * math.Sin(ph)
		}
		d.lp_len = 2 * pairs
		full_demod(s, d)
		var out = make([]float64, d.lp_len)
		copy(out, d.lowpassed[:d.lp_len])
		return out
	}

	/* First block charges filter histories. */
	run_block(0, 16384)
	var audio = run_block(16384, 16384)

	require.NotEmpty(t, audio)

	/* 2 kHz deviation at a 32 kHz discriminator rate: 2*f/fs = 0.125. */
	var sum float64
	for _, v := range audio[len(audio)/2:] {
		sum += v
	}
	var mean = sum / float64(len(audio)-len(audio)/2)
	assert.InDelta(t, 0.125, mean, 0.01)

	/* And through the resampler: same value, 3/2 the samples. */
	var res = make([]float64, 2*len(audio))
	var rn = resamp_block(d, audio, res)
	assert.InDelta(t, float64(len(audio))*1.5, float64(rn), 2)

	sum = 0
	for _, v := range res[rn/2 : rn] {
		sum += v
	}
	assert.InDelta(t, 0.125, sum/float64(rn-rn/2), 0.02)
}

func TestFS4MixerBringsOffsetChannelToDC(t *testing.T) {
	var d = fm_test_state(t)
	d.mixer_fs4 = true

	// The dongle parks fs/4 above the channel, so the channel shows up
	// at -fs/4 in raw baseband: e^(-j*pi*n/2).  After the j^n mixer
	// every sample must be the DC phasor (1, 0).
	var pairs = 16
	d.lowpassed = make([]float64, 2*pairs)
	for p := 0; p < pairs; p++ {
		switch p & 3 {
		case 0:
			d.lowpassed[2*p] = 1
		case 1:
			d.lowpassed[2*p+1] = -1
		case 2:
			d.lowpassed[2*p] = -1
		case 3:
			d.lowpassed[2*p+1] = 1
		}
	}
	d.lp_len = 2 * pairs

	fs4_mixer(d)

	for p := 0; p < pairs; p++ {
		assert.InDelta(t, 1, d.lowpassed[2*p], 1e-9, "I at pair %d", p)
		assert.InDelta(t, 0, d.lowpassed[2*p+1], 1e-9, "Q at pair %d", p)
	}
}

func TestDeemphasisAlphaSane(t *testing.T) {
	// 75 us at 48 kHz: alpha well inside (0, 1), larger tau = smaller alpha.
	var a75 = deemph_alpha_from_tau(75, 48000)
	var a750 = deemph_alpha_from_tau(750, 48000)

	assert.Greater(t, a75, 0.0)
	assert.Less(t, a75, 1.0)
	assert.Less(t, a750, a75)
}
