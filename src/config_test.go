package borzoi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	var cfg = config_from_env(Options{Freqs: []int64{446000000}}) //nolint:exhaustruct

	assert.Equal(t, 48000, cfg.opts.RateIn)
	assert.Equal(t, 48000, cfg.opts.RateOut)
	assert.Equal(t, DEFAULT_BUF_LEN, cfg.opts.BufLen)
	assert.Equal(t, 4, cfg.opts.ConseqSquelch)
	assert.Equal(t, 50, cfg.opts.RetuneDrainMs)
	assert.Equal(t, -1, cfg.tuner_bw_hz)
	assert.True(t, cfg.combine_rot)
	assert.False(t, cfg.disable_fs4_shift)
	assert.Equal(t, -1, cfg.offset_tuning)
	assert.True(t, cfg.autoppm.freeze_on_train)
	assert.False(t, cfg.autoppm.enabled)
	assert.False(t, cfg.autogain.enabled)
}

func TestConfigCQPSKDefaultsTo24k(t *testing.T) {
	var cfg = config_from_env(Options{Freqs: []int64{851012500}, CQPSK: true}) //nolint:exhaustruct
	assert.Equal(t, 24000, cfg.opts.RateOut)
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("DSD_NEO_TUNER_BW_HZ", "250000")
	t.Setenv("DSD_NEO_DISABLE_FS4_SHIFT", "1")
	t.Setenv("DSD_NEO_COMBINE_ROT", "0")
	t.Setenv("DSD_NEO_RTL_DIRECT", "Q")
	t.Setenv("DSD_NEO_RTL_OFFSET_TUNING", "on")
	t.Setenv("DSD_NEO_TUNER_AUTOGAIN", "1")
	t.Setenv("DSD_NEO_TUNER_AUTOGAIN_SEED_DB", "24")
	t.Setenv("DSD_NEO_AUTO_PPM", "true")
	t.Setenv("DSD_NEO_AUTO_PPM_SNR_DB", "9.5")
	t.Setenv("DSD_NEO_AUTO_PPM_FREEZE", "0")
	t.Setenv("DSD_NEO_TCP_PREBUF_MS", "2000")

	var cfg = config_from_env(Options{Freqs: []int64{446000000}}) //nolint:exhaustruct

	assert.Equal(t, 250000, cfg.tuner_bw_hz)
	assert.True(t, cfg.disable_fs4_shift)
	assert.False(t, cfg.combine_rot)
	assert.Equal(t, 2, cfg.rtl_direct)
	assert.Equal(t, 1, cfg.offset_tuning)
	assert.True(t, cfg.autogain.enabled)
	assert.Equal(t, 24, cfg.autogain.seed_db)
	assert.True(t, cfg.autoppm.enabled)
	assert.InDelta(t, 9.5, cfg.autoppm.snr_thr_db, 1e-9)
	assert.False(t, cfg.autoppm.freeze_on_train)

	/* Prebuffer is clamped into 5..1000 ms. */
	assert.Equal(t, 1000, cfg.tcp_prebuf_ms)
}

func TestConfigPrebufFloor(t *testing.T) {
	t.Setenv("DSD_NEO_TCP_PREBUF_MS", "2")
	var cfg = config_from_env(Options{Freqs: []int64{446000000}}) //nolint:exhaustruct
	assert.Equal(t, 5, cfg.tcp_prebuf_ms)
}

func TestParseIFGains(t *testing.T) {
	var gains = parse_if_gains("1:-30, 2:45,bad,3:0")
	require.Len(t, gains, 3)
	assert.Equal(t, if_gain_s{stage: 1, tenth_db: -30}, gains[0])
	assert.Equal(t, if_gain_s{stage: 2, tenth_db: 45}, gains[1])
	assert.Equal(t, if_gain_s{stage: 3, tenth_db: 0}, gains[2])
}

func TestCaptureAnchorsAreStableClocks(t *testing.T) {
	// Nothing in the anchor table sits in the known-bad 300-900 kHz gap.
	for _, a := range capture_rate_anchors {
		assert.True(t, a < 300000 || a > 900000, "anchor %d in the unstable band", a)
	}
}
