package borzoi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func autogain_test_stream(t *testing.T) (*Stream, *fake_device_s, *autogain_s) {
	t.Helper()

	var s, dev = fake_stream(t, Options{ //nolint:exhaustruct
		Freqs:  []int64{446000000},
		RateIn: 32000,
	})

	var ag = autogain_create(autogain_config_s{
		enabled:      true,
		probe_ms:     3000,
		seed_db:      30,
		spec_snr_db:  6,
		inband_ratio: 0.60,
		up_step_db:   3,
		up_persist:   2,
	})
	s.autogain = ag

	/* Age everything past the probe and retune holds. */
	ag.started_ms = dtime_monotonic_ms() - 10000
	s.ctrl.last_retune_ms = dtime_monotonic_ms() - 10000

	return s, dev, ag
}

func TestAutogainClippingStepsDown(t *testing.T) {
	var s, dev, _ = autogain_test_stream(t)
	dev.gain = 300

	/* A window of clipping blocks. */
	var hot = make([]float64, 256)
	hot[0] = 0.95
	for i := 0; i < AUTOGAIN_WINDOW_BLOCKS; i++ {
		autogain_observe_block(s, hot)
	}

	s.ctrl.mu.Lock()
	var pending = s.ctrl.pending_gain
	s.ctrl.mu.Unlock()
	assert.Equal(t, 300-50, pending, "expected a 5 dB down-step request")
}

func TestAutogainThrottle(t *testing.T) {
	var s, dev, ag = autogain_test_stream(t)
	dev.gain = 300

	var hot = make([]float64, 256)
	hot[0] = 0.95
	for i := 0; i < AUTOGAIN_WINDOW_BLOCKS; i++ {
		autogain_observe_block(s, hot)
	}

	s.ctrl.mu.Lock()
	require.Equal(t, 250, s.ctrl.pending_gain)
	s.ctrl.pending_gain = -1
	s.ctrl.mu.Unlock()
	dev.gain = 250

	/* Immediately clipping again: throttled, no second request. */
	for i := 0; i < AUTOGAIN_WINDOW_BLOCKS; i++ {
		autogain_observe_block(s, hot)
	}

	s.ctrl.mu.Lock()
	assert.Equal(t, -1, s.ctrl.pending_gain)
	s.ctrl.mu.Unlock()

	assert.NotZero(t, ag.last_change_ms)
}

func TestAutogainBootstrapOutOfAuto(t *testing.T) {
	var s, dev, _ = autogain_test_stream(t)
	dev.auto = true
	dev.gain = 0

	/* Starved input while the driver claims auto. */
	var cold = make([]float64, 256)
	for k := range cold {
		cold[k] = 0.01
	}
	for i := 0; i < AUTOGAIN_WINDOW_BLOCKS; i++ {
		autogain_observe_block(s, cold)
	}

	s.ctrl.mu.Lock()
	assert.Equal(t, 300, s.ctrl.pending_gain, "expected bootstrap to the 30 dB seed")
	s.ctrl.mu.Unlock()
}

func TestAutogainGainClampedAtFloor(t *testing.T) {
	var s, dev, _ = autogain_test_stream(t)
	dev.gain = 20 /* 2 dB: a 5 dB step would go negative */

	var hot = make([]float64, 256)
	hot[0] = 0.95
	for i := 0; i < AUTOGAIN_WINDOW_BLOCKS; i++ {
		autogain_observe_block(s, hot)
	}

	s.ctrl.mu.Lock()
	assert.Equal(t, 0, s.ctrl.pending_gain)
	s.ctrl.mu.Unlock()
}

func TestAutogainDisabledDoesNothing(t *testing.T) {
	var s, _, ag = autogain_test_stream(t)
	ag.cfg.enabled = false

	var hot = make([]float64, 256)
	hot[0] = 0.95
	for i := 0; i < 3*AUTOGAIN_WINDOW_BLOCKS; i++ {
		autogain_observe_block(s, hot)
	}

	s.ctrl.mu.Lock()
	assert.Equal(t, -1, s.ctrl.pending_gain)
	s.ctrl.mu.Unlock()
}

func TestAutogainUpGateNeedsSpectrum(t *testing.T) {
	var s, _, ag = autogain_test_stream(t)

	/* No spectrum frame yet: gate closed. */
	assert.False(t, autogain_up_gate(s, ag))
}
