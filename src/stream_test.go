package borzoi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamOpenConfigErrors(t *testing.T) {
	var _, err = StreamOpen(Options{}) //nolint:exhaustruct
	assert.ErrorIs(t, err, ErrNoFrequency)

	var many = make([]int64, MAX_FREQS+1)
	for i := range many {
		many[i] = 446000000 + int64(i)*12500
	}
	_, err = StreamOpen(Options{Freqs: many, SquelchLevel: 5}) //nolint:exhaustruct
	assert.ErrorIs(t, err, ErrTooManyChannels)

	_, err = StreamOpen(Options{Freqs: []int64{446000000, 447000000}}) //nolint:exhaustruct
	assert.ErrorIs(t, err, ErrScanWithoutSquelch)
}

func TestTuneDeferredWhileTraining(t *testing.T) {
	var s, _ = fake_stream(t, Options{ //nolint:exhaustruct
		Freqs:  []int64{851000000},
		RateIn: 24000,
	})

	s.autoppm.enabled.Store(true)
	s.autoppm.training.Store(true)
	s.cfg.autoppm.freeze_on_train = true

	assert.Equal(t, TUNE_DEFERRED, s.Tune(851012500))

	/* Once locked, tuning flows again. */
	s.autoppm.locked.Store(true)
	assert.Equal(t, TUNE_OK, s.Tune(851012500))

	s.ctrl.mu.Lock()
	assert.True(t, s.ctrl.pending_retune)
	assert.Equal(t, int64(851012500), s.ctrl.pending_freq)
	s.ctrl.mu.Unlock()
}

func TestClearOutputThenReadTimesOut(t *testing.T) {
	var s, _ = fake_stream(t, Options{ //nolint:exhaustruct
		Freqs:  []int64{446000000},
		RateIn: 32000,
	})

	ring_write_block(s.output, make([]float64, 128))
	s.ClearOutput()

	var buf = make([]float64, 64)
	var start = time.Now()
	var n = ring_read_block(s.output, buf, 30*time.Millisecond)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	/* New production is visible again. */
	ring_write_block(s.output, []float64{1, 2, 3})
	assert.Equal(t, 3, ring_read_block(s.output, buf, time.Millisecond))
}

func TestSetTEDSPSIdempotence(t *testing.T) {
	var s, _ = fake_stream(t, Options{ //nolint:exhaustruct
		Freqs:          []int64{851012500},
		CQPSK:          true,
		RateIn:         24000,
		RateOut:        24000,
		TEDSPSOverride: 5,
	})

	/* set_ted_sps_no_override(k) then set_ted_sps(k) must equal just
	 * set_ted_sps(k). */

	s.SetTEDSPSNoOverride(4)
	s.SetTEDSPS(4)
	demod_reset_on_retune(s.demod, controller_take_pending_sps(s.ctrl))
	var a = *s.demod

	var s2, _ = fake_stream(t, Options{ //nolint:exhaustruct
		Freqs:          []int64{851012500},
		CQPSK:          true,
		RateIn:         24000,
		RateOut:        24000,
		TEDSPSOverride: 5,
	})
	s2.SetTEDSPS(4)
	demod_reset_on_retune(s2.demod, controller_take_pending_sps(s2.ctrl))
	var b = *s2.demod

	assert.Equal(t, a.ted_sps_override, b.ted_sps_override)
	assert.Equal(t, a.ted_sps, b.ted_sps)
	assert.Equal(t, a.ted_omega, b.ted_omega)
	assert.Equal(t, a.channel_lpf_profile, b.channel_lpf_profile)
	assert.Equal(t, a.costas_freq, b.costas_freq)
	assert.Equal(t, a.costas_reset_pending, b.costas_reset_pending)
}

func TestSetIQDCShiftClamped(t *testing.T) {
	var s, _ = fake_stream(t, Options{ //nolint:exhaustruct
		Freqs:  []int64{446000000},
		RateIn: 32000,
	})

	s.SetIQDCShift(3)
	assert.Equal(t, 6, s.demod.iq_dc_shift)
	s.SetIQDCShift(99)
	assert.Equal(t, 15, s.demod.iq_dc_shift)
}

func TestSoftStopJoinsWorkers(t *testing.T) {
	var s, _ = fake_stream(t, Options{ //nolint:exhaustruct
		Freqs:  []int64{446000000},
		RateIn: 32000,
	})
	require.NoError(t, controller_cold_start(s))

	s.wg.Add(2)
	go dsp_worker(s)
	go controller_thread_stub(s)

	var start = time.Now()
	assert.Equal(t, 0, s.SoftStop())
	assert.Less(t, time.Since(start), 2*time.Second)

	/* Idempotent. */
	assert.Equal(t, 0, s.SoftStop())
}

// controller_thread without the cold start (already done by the test).
func controller_thread_stub(s *Stream) {
	defer s.wg.Done()
	var c = s.ctrl
	for {
		c.mu.Lock()
		for !c.pending_retune && !c.hop_requested && !s.should_exit.Load() {
			c.hop_cv.Wait()
		}
		var exiting = s.should_exit.Load()
		c.pending_retune = false
		c.hop_requested = false
		c.mu.Unlock()
		if exiting {
			return
		}
	}
}
