package borzoi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoPPMStepSizes(t *testing.T) {
	assert.Equal(t, 8, autoppm_step_size(60))
	assert.Equal(t, 8, autoppm_step_size(-50))
	assert.Equal(t, 4, autoppm_step_size(30))
	assert.Equal(t, 2, autoppm_step_size(15))
	assert.Equal(t, 1, autoppm_step_size(5))
	assert.Equal(t, 1, autoppm_step_size(0.9))
}

func autoppm_test_instance() *autoppm_s {
	var ap = autoppm_create(autoppm_config_s{
		enabled:         true,
		snr_thr_db:      6,
		pwr_thr_db:      -80,
		zerolock_ppm:    0.6,
		zerolock_hz:     60,
		freeze_on_train: true,
	}, 0)
	return ap
}

func TestAutoPPMZeroStepLock(t *testing.T) {
	var ap = autoppm_test_instance()
	var now = dtime_monotonic_ms()

	/* No steps taken, residual tiny: the dongle was simply right. */
	var locked = autoppm_check_lock(nil, ap, now, 30 /* df */, 0.3 /* ppm */, 12)
	assert.True(t, locked)
	assert.True(t, ap.locked.Load())
	assert.InDelta(t, 30, math.Float64frombits(ap.lock_df_bits.Load()), 1e-9)
}

func TestAutoPPMNoZeroStepLockOutsideBand(t *testing.T) {
	var ap = autoppm_test_instance()
	var now = dtime_monotonic_ms()

	assert.False(t, autoppm_check_lock(nil, ap, now, 90, 0.3, 12))
	assert.False(t, autoppm_check_lock(nil, ap, now, 30, 0.7, 12))
	assert.False(t, ap.locked.Load())
}

func TestAutoPPMMaxStepsLock(t *testing.T) {
	var ap = autoppm_test_instance()
	ap.steps_done = AUTOPPM_TRAIN_MAX_STEPS
	ap.applied_ppm = 11

	require.True(t, autoppm_check_lock(nil, ap, dtime_monotonic_ms(), 400, 5, 9))
	assert.InDelta(t, 11, math.Float64frombits(ap.lock_ppm_bits.Load()), 1e-9)
}

func TestAutoPPMStabilityWindowLock(t *testing.T) {
	var ap = autoppm_test_instance()
	ap.steps_done = 2
	var now = dtime_monotonic_ms()

	/* First sighting inside the stability band arms the window... */
	assert.False(t, autoppm_check_lock(nil, ap, now, 100, 4, 9))
	/* ...still inside after the window elapses: locked. */
	assert.True(t, autoppm_check_lock(nil, ap, now+AUTOPPM_STABLE_MS+1, 100, 4, 9))
}

func TestAutoPPMStabilityWindowResets(t *testing.T) {
	var ap = autoppm_test_instance()
	ap.steps_done = 2
	var now = dtime_monotonic_ms()

	assert.False(t, autoppm_check_lock(nil, ap, now, 100, 4, 9))
	/* Excursion outside the band resets the clock. */
	assert.False(t, autoppm_check_lock(nil, ap, now+1000, 300, 12, 9))
	assert.False(t, autoppm_check_lock(nil, ap, now+AUTOPPM_STABLE_MS+2, 100, 4, 9))
}

/*
 * Driving the full tick loop with a synthetic stream: a tone parked
 * +10 ppm off center must be walked back within the training budget.
 */
func TestAutoPPMConverges(t *testing.T) {
	var s, dev = fake_stream(t, Options{ //nolint:exhaustruct
		Freqs:   []int64{851000000},
		RateIn:  24000,
		RateOut: 24000,
	})
	require.NoError(t, controller_cold_start(s))

	var ap = autoppm_test_instance()
	s.autoppm = ap

	var true_error_ppm = 10.0

	var feed = func() {
		/* The apparent offset shrinks as corrections are applied. */
		var residual_ppm = true_error_ppm - float64(dev.ppm)
		var df = residual_ppm * 851000000 / 1e6

		var block = make([]float64, 2*SPECTRUM_BINS)
		for p := 0; p < SPECTRUM_BINS; p++ {
			var ph = 2 * math.Pi * df * float64(p) / 24000
			block[2*p] = math.Cos(ph)
			block[2*p+1] = math.Sin(ph)
		}
		spectrum_feed(s.spectrum, block, 24000)

		s.metrics.channel_pwr_bits.Store(math.Float64bits(0.5))
		metrics_publish_snr(s.metrics, SNR_MODE_C4FM, 15, SNR_SOURCE_DIRECT)
	}

	/* Simulated time: bypass the wall-clock debounces. */
	ap.train_started_ms = dtime_monotonic_ms() - 5000
	ap.pwr_above_since = dtime_monotonic_ms() - 5000
	ap.last_change_ms = 0

	for i := 0; i < 400 && !ap.locked.Load(); i++ {
		feed()
		autoppm_tick(s)
		/* Apply the mailbox the way the controller thread would. */
		s.ctrl.mu.Lock()
		if s.ctrl.ppm_pending {
			dev.ppm = s.ctrl.pending_ppm
			s.ctrl.ppm_pending = false
		}
		s.ctrl.mu.Unlock()
		/* Collapse the throttle for test speed. */
		ap.last_change_ms -= AUTOPPM_THROTTLE_MS + 1
		ap.pwr_above_since -= AUTOPPM_PWR_DEBOUNCE_MS
	}

	assert.True(t, ap.locked.Load(), "trainer should lock")
	assert.InDelta(t, true_error_ppm, float64(dev.ppm), 2.5)
}

func TestAutoPPMClampsPPM(t *testing.T) {
	var ap = autoppm_test_instance()
	ap.applied_ppm = 199

	assert.Equal(t, 200, clampi(ap.applied_ppm+8, -AUTOPPM_CLAMP_PPM, AUTOPPM_CLAMP_PPM))
}

func TestAutoPPMStatusSnapshot(t *testing.T) {
	var ap = autoppm_test_instance()
	ap.est_ppm_bits.Store(math.Float64bits(7.5))
	ap.training.Store(true)

	var st = auto_ppm_get_status(ap)
	assert.True(t, st.Enabled)
	assert.True(t, st.Training)
	assert.False(t, st.Locked)
	assert.InDelta(t, 7.5, st.EstPPM, 1e-9)

	assert.True(t, auto_ppm_training_active(ap))
	ap.locked.Store(true)
	assert.False(t, auto_ppm_training_active(ap))
}
