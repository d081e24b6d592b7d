package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	The stream owner: aggregates device, rings, demod,
 *		controller, estimators, and auto controllers, and
 *		exposes the consumer-facing API.
 *
 * Description:	One Stream per dongle.  Three long-lived threads: the
 *		device read path (driver-owned), the DSP worker, and the
 *		controller; plus the optional UDP control listener.
 *		should_exit lives here and every loop checks it.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var ErrNoFrequency = errors.New("no frequency given")
var ErrTooManyChannels = errors.New("too many channels")
var ErrScanWithoutSquelch = errors.New("scanning needs a squelch level")

/* Result of Tune. */

type TuneResult int

const (
	TUNE_OK       TuneResult = 0
	TUNE_DEFERRED TuneResult = 1 /* auto-PPM training holds retunes */
)

type Stream struct {
	cfg *stream_config_s

	dev    device_s
	ingest *ingest_s

	input  *sample_ring_s
	output *sample_ring_s

	demod    *demod_state_s
	metrics  *metrics_s
	scope    *scope_s
	spectrum *spectrum_s

	ctrl     *controller_s
	autogain *autogain_s
	autoppm  *autoppm_s

	udp *udp_control_s

	should_exit        atomic.Bool
	cold_start_ready   atomic.Bool
	retune_in_progress atomic.Bool

	open_err chan error
	wg       sync.WaitGroup

	status_stop chan struct{}

	stop_once sync.Once
	closed    bool
}

/*-------------------------------------------------------------------
 *
 * Name:        StreamOpen
 *
 * Purpose:     Validate options, open the device, start the threads,
 *		and block until the cold start has the dongle streaming.
 *
 * Returns:	A live Stream, or an error (configuration, resource, or
 *		device kind; all fatal to the open).
 *
 *--------------------------------------------------------------------*/

func StreamOpen(opts Options) (*Stream, error) {

	var cfg = config_from_env(opts)

	if len(cfg.opts.Freqs) == 0 {
		return nil, ErrNoFrequency
	}
	if len(cfg.opts.Freqs) > MAX_FREQS {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyChannels, len(cfg.opts.Freqs), MAX_FREQS)
	}
	if len(cfg.opts.Freqs) > 1 && cfg.opts.SquelchLevel <= 0 {
		return nil, ErrScanWithoutSquelch
	}

	text_color_init(cfg.opts.EnableColor)

	var s = &Stream{ //nolint:exhaustruct
		cfg:      cfg,
		metrics:  metrics_create(),
		scope:    scope_create(),
		spectrum: spectrum_create(),
		ctrl:     controller_create(cfg.opts.Freqs),
		open_err: make(chan error, 1),
	}

	/* Input ring holds a couple dozen transfers; grow it to cover the
	 * TCP prebuffer slab before the read pump ever starts, because
	 * capacity is immutable afterwards. */

	var in_capacity = 32 * cfg.opts.BufLen
	if cfg.opts.TCPAddr != "" && cfg.tcp_prebuf_ms > 0 {
		/* The quantized capture rate is not known until cold start;
		 * use the one the controller's capture settings will request. */
		var _, capture_guess = controller_capture_settings(cfg.opts.RateIn)
		var prebuf_scalars = 2 * capture_guess / 1000 * cfg.tcp_prebuf_ms
		if in_capacity < 2*prebuf_scalars {
			in_capacity = 2 * prebuf_scalars
		}
	}
	s.input = ring_create(in_capacity)
	s.output = ring_create(4 * cfg.opts.RateOut) /* a few seconds of audio */

	/* Rotation is armed later by the controller once the offset-tuning
	 * question is settled; created disabled. */
	s.ingest = ingest_create(s.input, false, cfg.opts.BufLen)

	var err error
	if cfg.opts.TCPAddr != "" {
		s.dev, err = rtl_tcp_open(cfg.opts.TCPAddr, s.ingest, cfg.tcp_prebuf_ms)
	} else {
		s.dev, err = rtl_device_open(cfg.opts.DeviceIndex, s.ingest)
	}
	if err != nil {
		return nil, err
	}

	s.demod = demod_init_state(cfg)
	s.autogain = autogain_create(cfg.autogain)
	s.autoppm = autoppm_create(cfg.autoppm, cfg.opts.PPM)

	s.wg.Add(2)
	go controller_thread(s)
	go dsp_worker(s)

	/* Cold start verdict. */
	if err := <-s.open_err; err != nil {
		s.should_exit.Store(true)
		controller_wake(s.ctrl)
		ring_close(s.input)
		ring_close(s.output)
		s.wg.Wait()
		s.dev.destroy()
		return nil, err
	}

	if cfg.opts.UDPPort > 0 {
		s.udp, err = udp_control_start(s, cfg.opts.UDPPort)
		if err != nil {
			text_color_set(TC_COLOR_ERROR)
			tc_printf("UDP control disabled: %v\n", err)
		} else if cfg.opts.Announce {
			dns_sd_announce(cfg.opts.UDPPort)
		}
	}

	return s, nil
}

/*-------------------------------------------------------------------
 *
 * Name:        Read
 *
 * Purpose:     Deliver demodulated samples (FM) or interleaved symbol
 *		I,Q (CQPSK).  Blocks up to the timeout.  No volume
 *		scaling is applied.
 *
 * Returns:	Sample count, or -1 on timeout / closed-and-drained.
 *
 *--------------------------------------------------------------------*/

func (s *Stream) Read(buf []float64) int {
	autoppm_tick(s)

	var n = ring_read_block(s.output, buf, 500*time.Millisecond)
	if n == 0 {
		return -1
	}
	return n
}

// Stopped reports whether the stream has been asked to wind down.
func (s *Stream) Stopped() bool {
	return s.should_exit.Load()
}

// OutputRate reports the rate Read delivers at: the resampler target,
// the symbol rate for CQPSK, or the native demod rate.
func (s *Stream) OutputRate() int {
	return demod_output_rate(s.demod)
}

// ReturnPwr exposes the post-channel-filter power for soft squelch.
func (s *Stream) ReturnPwr() float64 {
	return metrics_channel_pwr(s.metrics)
}

/*-------------------------------------------------------------------
 *
 * Name:        Tune
 *
 * Purpose:     Ask the controller for a retune.  Deferred while the
 *		auto-PPM trainer is mid-training with freeze enabled,
 *		because a retune would invalidate its measurements.
 *
 *--------------------------------------------------------------------*/

func (s *Stream) Tune(freq_hz int64) TuneResult {
	if s.cfg.autoppm.freeze_on_train && auto_ppm_training_active(s.autoppm) {
		return TUNE_DEFERRED
	}
	controller_enqueue_retune(s.ctrl, freq_hz)
	return TUNE_OK
}

/*-------------------------------------------------------------------
 *
 * Name:        SoftStop / Close
 *
 * Purpose:     SoftStop winds down the threads but can be called from
 *		anywhere any number of times.  Close does a SoftStop and
 *		then releases the device.
 *
 *--------------------------------------------------------------------*/

func (s *Stream) SoftStop() int {
	s.stop_once.Do(func() {
		s.should_exit.Store(true)
		if s.status_stop != nil {
			close(s.status_stop)
		}
		controller_wake(s.ctrl)
		ring_close(s.input)
		ring_close(s.output)
		s.dev.stop_async()
		udp_control_stop(s.udp)
		s.wg.Wait()
	})
	return 0
}

func (s *Stream) Close() {
	s.SoftStop()
	if !s.closed {
		s.closed = true
		s.dev.destroy()
	}
}

/* ClearOutput discards everything the consumer has not read yet. */

func (s *Stream) ClearOutput() {
	ring_clear(s.output)
}

func (s *Stream) SetChannelSquelch(level float64) {
	s.demod.squelch_level = level
}

/*-------------------------------------------------------------------
 *
 * DSP toggles and getters.  These poke fields the DSP worker owns;
 * each takes effect on the next block, which is the same relaxed
 * contract the atomics in the other direction have.
 *
 *--------------------------------------------------------------------*/

func (s *Stream) SetCQPSK(on bool) {
	s.demod.cqpsk_enable = on
	demod_select_cqpsk_profile(s.demod)
}

func (s *Stream) CQPSK() bool { return s.demod.cqpsk_enable }

func (s *Stream) SetFLL(on bool) { s.demod.fll_enabled = on }
func (s *Stream) FLL() bool      { return s.demod.fll_enabled }
func (s *Stream) SetTED(on bool) { s.demod.ted_enabled = on }
func (s *Stream) TED() bool      { return s.demod.ted_enabled }

// SetTEDSPS schedules a samples-per-symbol override for the next retune.
// Changing the symbol clock geometry also schedules a full Costas reset.
func (s *Stream) SetTEDSPS(sps int) {
	if sps != s.demod.ted_sps_override {
		s.demod.costas_reset_pending = true
	}
	controller_set_pending_sps(s.ctrl, sps)
}

// SetTEDSPSNoOverride adjusts the nominal symbol clock without recording
// an override or disturbing the Costas loop.
func (s *Stream) SetTEDSPSNoOverride(sps int) {
	s.demod.ted_sps = float64(sps)
	s.demod.ted_omega = float64(sps)
}

// ClearTEDSPSOverride removes the override at the next retune.  A Costas
// reset already pending from an SPS change still happens.
func (s *Stream) ClearTEDSPSOverride() {
	controller_set_pending_sps(s.ctrl, TED_SPS_CLEAR)
}

func (s *Stream) TEDSPS() int { return int(s.demod.ted_sps) }

func (s *Stream) SetTEDGain(gain float64) { s.demod.ted_gain = gain }
func (s *Stream) SetTEDForce(on bool)     { s.demod.ted_force = on }
func (s *Stream) TEDBias() float64        { return s.demod.ted_e_ema }

func (s *Stream) SetFMAGC(on bool) { s.demod.fm_agc_enabled = on }
func (s *Stream) FMAGC() bool      { return s.demod.fm_agc_enabled }

func (s *Stream) SetFMAGCParams(target_rms, min_rms, alpha_up, alpha_down float64) {
	s.demod.fm_agc_target_rms = target_rms
	s.demod.fm_agc_min_rms = min_rms
	s.demod.fm_agc_alpha_up = alpha_up
	s.demod.fm_agc_alpha_down = alpha_down
}

func (s *Stream) SetFMLimiter(on bool) { s.demod.fm_limiter_on = on }

func (s *Stream) SetIQDC(on bool) {
	s.demod.iq_dc_enabled = on
	s.demod.iq_dc_primed = false
}

func (s *Stream) SetIQDCShift(shift int) {
	s.demod.iq_dc_shift = clampi(shift, 6, 15)
}

func (s *Stream) SetIQBalance(on bool) { s.demod.iq_balance_enabled = on }

func (s *Stream) SetResampTarget(hz int) {
	s.demod.resamp_target = hz
	s.demod.resamp_warned = false
	resamp_design(s.demod)
}

// SetRTLTCPAutotune asks a cooperating rtl_tcp server to chase the
// strongest nearby carrier.  No effect on USB devices.
func (s *Stream) SetRTLTCPAutotune(on bool) error {
	if tcp, ok := s.dev.(*rtl_tcp_device_s); ok {
		return tcp.set_autotune(on)
	}
	return nil
}

func (s *Stream) SetBiasTee(on bool) error {
	return s.dev.set_bias_tee(on)
}

/*-------------------------------------------------------------------
 *
 * Snapshot and telemetry APIs.
 *
 *--------------------------------------------------------------------*/

func (s *Stream) ConstellationGet(out_xy []float64, max_points int) int {
	return constellation_get(s.scope, out_xy, max_points)
}

func (s *Stream) EyeGet(out []float64, max_samples int) (int, float64) {
	return eye_get(s.scope, out, max_samples)
}

func (s *Stream) SpectrumGet(out_db []float64, max_bins int) (int, int) {
	return spectrum_get(s.spectrum, out_db, max_bins)
}

func (s *Stream) SNR(mode snr_mode_e) (float64, int64, int32) {
	return metrics_snr(s.metrics, mode)
}

func (s *Stream) InputDrops() int64 {
	return s.input.producer_drops.Load()
}

func (s *Stream) ReadTimeouts() int64 {
	return s.output.read_timeouts.Load()
}

/*-------------------------------------------------------------------
 *
 * Auto controller APIs.
 *
 *--------------------------------------------------------------------*/

func (s *Stream) SetAutoPPM(on bool) {
	s.autoppm.enabled.Store(on)
}

func (s *Stream) AutoPPMStatus() autoppm_status_s {
	return auto_ppm_get_status(s.autoppm)
}

func (s *Stream) AutoPPMTrainingActive() bool {
	return auto_ppm_training_active(s.autoppm)
}

func (s *Stream) SetTunerAutogain(on bool) {
	s.autogain.cfg.enabled = on
}

/* end stream.go */
