package borzoi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cqpsk_test_state(t *testing.T, sps int) *demod_state_s {
	t.Helper()
	var cfg = config_from_env(Options{ //nolint:exhaustruct
		Freqs:          []int64{851012500},
		CQPSK:          true,
		RateIn:         24000,
		RateOut:        24000,
		TEDSPSOverride: sps,
	})
	return demod_init_state(cfg)
}

func TestDifferentialFirstSymbolPassesThrough(t *testing.T) {
	var d = cqpsk_test_state(t, 5)

	demod_reset_on_retune(d, 0)
	require.Equal(t, complex(1, 0), d.diff_prev)

	var s0 = complex(0.7, 0.7)
	var s1 = complex(-0.7, 0.7)
	d.lowpassed = make([]float64, 8)
	d.lp_len = 8

	costas_differential(d, []complex128{s0, s1}, 2)

	// First symbol unchanged because diff_prev was the unit phasor.
	assert.InDelta(t, real(s0), d.lowpassed[0], 1e-9)
	assert.InDelta(t, imag(s0), d.lowpassed[1], 1e-9)

	// Second is s1 * conj(s0'), where s0' is s0 after the (small)
	// Costas rotation; just check the 90 degree phase step survives.
	var y1 = complex(d.lowpassed[2], d.lowpassed[3])
	assert.InDelta(t, math.Pi/2, math.Atan2(imag(y1), real(y1)), 0.2)
}

func TestCostasDiagonalSymbolsLowError(t *testing.T) {
	var d = cqpsk_test_state(t, 5)

	// Ideal diagonal QPSK symbols produce (near) zero decision error,
	// so the loop should barely move.
	var syms = make([]complex128, 64)
	for k := range syms {
		var quadrant = []complex128{
			complex(0.707, 0.707), complex(-0.707, 0.707),
			complex(-0.707, -0.707), complex(0.707, -0.707),
		}
		syms[k] = quadrant[k%4]
	}

	d.lowpassed = make([]float64, 2*len(syms))
	d.lp_len = 2 * len(syms)
	costas_differential(d, syms, len(syms))

	assert.InDelta(t, 0, d.costas_freq, 1e-3)
	assert.InDelta(t, 0, d.costas_phase, 1e-2)
}

func TestGardnerSymbolRate(t *testing.T) {
	var d = cqpsk_test_state(t, 5)

	// 500 input samples at 5 samples/symbol: roughly 100 symbols out.
	var pairs = 500
	d.lowpassed = make([]float64, 2*pairs)
	for p := 0; p < pairs; p++ {
		var sym = (p / 5) % 2
		var v = IfThenElse(sym == 0, 0.707, -0.707)
		d.lowpassed[2*p] = v
		d.lowpassed[2*p+1] = v
	}
	d.lp_len = 2 * pairs

	var out = make([]complex128, pairs)
	var n = gardner_ted(d, out)

	assert.InDelta(t, 100, float64(n), 5)
}

func TestGardnerDisabledDecimatesByNominalSPS(t *testing.T) {
	var d = cqpsk_test_state(t, 4)
	d.ted_enabled = false

	var pairs = 400
	d.lowpassed = make([]float64, 2*pairs)
	d.lp_len = 2 * pairs

	var out = make([]complex128, pairs)
	var n = gardner_ted(d, out)
	assert.Equal(t, 100, n)
}

func TestCQPSKRetuneProfileSwitch(t *testing.T) {
	var d = cqpsk_test_state(t, 5)
	assert.Equal(t, LPF_PROFILE_OP25_FDMA, d.channel_lpf_profile)

	// Retune to a P25 Phase 2 voice channel: SPS override 4.
	d.costas_freq = 0.05
	d.fll_freq = 0.01
	d.ted_delay[0] = complex(1, 1)

	demod_reset_on_retune(d, 4)

	assert.Equal(t, LPF_PROFILE_OP25_TDMA, d.channel_lpf_profile)
	assert.Zero(t, d.costas_freq)
	assert.Zero(t, d.fll_freq)
	assert.Equal(t, complex(1, 0), d.diff_prev)
	for i, v := range d.ted_delay {
		assert.Zero(t, v, "TED delay line entry %d not cleared", i)
	}

	// And back to Phase 1: profile follows, but loop state survives.
	d.costas_freq = 0.03
	demod_reset_on_retune(d, 5)
	assert.Equal(t, LPF_PROFILE_OP25_FDMA, d.channel_lpf_profile)
	assert.InDelta(t, 0.03, d.costas_freq, 1e-12)
}

func TestCostasResetPendingForcesFullReset(t *testing.T) {
	var d = cqpsk_test_state(t, 5)

	d.costas_freq = 0.04
	d.costas_reset_pending = true

	// A same-SPS retune would normally preserve the frequency; the
	// pending flag from an SPS change overrides that.
	demod_reset_on_retune(d, 5)
	assert.Zero(t, d.costas_freq)
	assert.False(t, d.costas_reset_pending)
}

func TestClearSPSOverride(t *testing.T) {
	var d = cqpsk_test_state(t, 4)
	require.Equal(t, 4, d.ted_sps_override)

	demod_reset_on_retune(d, TED_SPS_CLEAR)
	assert.Zero(t, d.ted_sps_override)
	assert.InDelta(t, float64(d.rate_out)/4800.0, d.ted_sps, 1e-9)
}

func TestFLLAppliesTrackedFrequency(t *testing.T) {
	var d = cqpsk_test_state(t, 5)

	// With the loop gains zeroed and a preloaded frequency, the NCO
	// must spin the block by exactly that rate.
	d.fll_alpha = 0
	d.fll_beta = 0
	d.fll_freq = 0.1

	var pairs = 16
	d.lowpassed = make([]float64, 2*pairs)
	for p := 0; p < pairs; p++ {
		d.lowpassed[2*p] = 1
	}
	d.lp_len = 2 * pairs

	fll_process(d)

	for p := 0; p < pairs; p++ {
		var want = -0.1 * float64(p)
		var got = math.Atan2(d.lowpassed[2*p+1], d.lowpassed[2*p])
		assert.InDelta(t, math.Mod(want+3*math.Pi, 2*math.Pi)-math.Pi, got, 1e-9, "sample %d", p)
	}
}

func TestFLLFrequencyClamped(t *testing.T) {
	var d = cqpsk_test_state(t, 5)
	d.fll_freq = 10 /* absurd preload */

	d.lowpassed = make([]float64, 64)
	d.lp_len = 64
	fll_process(d)

	assert.LessOrEqual(t, math.Abs(d.fll_freq), 0.5)
}
