package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	Tuner controller: owns the dongle registers, the
 *		retune/hop state machine, and the cold-start sequence.
 *
 * Description:	All register programming happens on this thread.  Other
 *		threads (consumer API, UDP listener, the DSP worker's
 *		squelch) talk to it through a mailbox-of-one: a pending
 *		flag plus target under the mutex, and the hop condition
 *		variable to wake it.
 *
 *---------------------------------------------------------------*/

import (
	"sync"
	"time"
)

type controller_state_e int

const (
	CTRL_IDLE controller_state_e = iota
	CTRL_COLD_START
	CTRL_STEADY
	CTRL_RETUNING
	CTRL_HOPPING
	CTRL_EXITING
)

type controller_s struct {
	mu     sync.Mutex
	hop_cv *sync.Cond

	state controller_state_e

	freqs    []int64
	freq_now int

	pending_retune bool
	pending_freq   int64

	pending_sps_override int /* 0 = nothing pending */

	hop_requested bool

	/* Gain and PPM writes requested by the auto controllers; -1 and
	 * the sentinel mean nothing pending.  Register access stays on
	 * this thread. */
	pending_gain int
	pending_ppm  int
	ppm_pending  bool

	/* Set when the most recent register programming finished, for the
	 * autogain hold-off. */
	last_retune_ms int64
}

func controller_create(freqs []int64) *controller_s {
	var c = &controller_s{ //nolint:exhaustruct
		state:        CTRL_IDLE,
		freqs:        freqs,
		pending_gain: -1,
	}
	c.hop_cv = sync.NewCond(&c.mu)
	return c
}

/* Thread-safe entry points. */

func controller_enqueue_retune(c *controller_s, freq_hz int64) {
	c.mu.Lock()
	c.pending_retune = true
	c.pending_freq = freq_hz
	c.hop_cv.Broadcast()
	c.mu.Unlock()
}

func controller_signal_hop(c *controller_s) {
	c.mu.Lock()
	if !c.hop_requested {
		c.hop_requested = true
		c.hop_cv.Broadcast()
	}
	c.mu.Unlock()
}

func controller_enqueue_gain(c *controller_s, tenth_db int) {
	c.mu.Lock()
	c.pending_gain = tenth_db
	c.hop_cv.Broadcast()
	c.mu.Unlock()
}

func controller_enqueue_ppm(c *controller_s, ppm int) {
	c.mu.Lock()
	c.pending_ppm = ppm
	c.ppm_pending = true
	c.hop_cv.Broadcast()
	c.mu.Unlock()
}

func controller_set_pending_sps(c *controller_s, sps int) {
	c.mu.Lock()
	c.pending_sps_override = sps
	c.mu.Unlock()
}

func controller_wake(c *controller_s) {
	c.mu.Lock()
	c.hop_cv.Broadcast()
	c.mu.Unlock()
}

func controller_current_freq(c *controller_s) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.freqs) == 0 {
		return 0
	}
	return c.freqs[c.freq_now]
}

func controller_last_retune_ms(c *controller_s) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last_retune_ms
}

/*-------------------------------------------------------------------
 *
 * Name:        controller_capture_settings
 *
 * Purpose:     Choose the halfband pass count so the hardware capture
 *		rate (rate_in << passes) lands nearest one of the stable
 *		RTL2832U clocks.
 *
 * Returns:	passes and the resulting capture rate.
 *
 *--------------------------------------------------------------------*/

func controller_capture_settings(rate_in int) (int, int) {
	var best_passes = 0
	var best_dist = 1 << 62

	for p := 0; p <= MAX_DOWNSAMPLE_PASSES; p++ {
		var cand = rate_in << uint(p)
		if cand > 3200000 {
			break
		}
		for _, anchor := range capture_rate_anchors {
			var dist = abs_int(cand - anchor)
			if dist < best_dist {
				best_dist = dist
				best_passes = p
			}
		}
	}

	return best_passes, rate_in << uint(best_passes)
}

/*-------------------------------------------------------------------
 *
 * Name:        controller_cold_start
 *
 * Purpose:     Program the dongle for freqs[0] and arm the DSP.
 *
 * Description:	Order matters to the driver: direct sampling and offset
 *		tuning first (they change what the tuner is), then
 *		frequency, then sample rate, then bandwidth.  The
 *		quantized rate is read back and the DSP rates reconciled
 *		before any filters are designed.
 *
 *--------------------------------------------------------------------*/

func controller_cold_start(s *Stream) error {
	var c = s.ctrl
	var d = s.demod
	var cfg = s.cfg
	var dev = s.dev

	c.mu.Lock()
	c.state = CTRL_COLD_START
	c.mu.Unlock()

	var passes, capture = controller_capture_settings(d.rate_in)
	d.downsample_passes = passes
	d.capture_rate = capture

	if cfg.rtl_direct != 0 {
		if err := dev.set_direct_sampling(cfg.rtl_direct); err != nil {
			text_color_set(TC_COLOR_ERROR)
			tc_printf("Direct sampling mode %d not accepted: %v\n", cfg.rtl_direct, err)
		}
	}

	/* Offset tuning and the fs/4 arrangement are coupled: with offset
	 * tuning the tuner has already moved its own IF away from DC and
	 * the rotation would shift the channel off-center.  rtl_tcp
	 * defaults offset tuning off for exactly this reason. */

	var offset_tuning = cfg.offset_tuning == 1
	if cfg.offset_tuning == -1 && cfg.opts.TCPAddr != "" {
		offset_tuning = false
	}
	if cfg.offset_tuning != -1 || cfg.opts.TCPAddr != "" {
		if err := dev.set_offset_tuning(offset_tuning); err != nil {
			text_color_set(TC_COLOR_DEBUG)
			tc_printf("Offset tuning not supported by this tuner: %v\n", err)
			offset_tuning = false
		}
	}

	d.fs4_active = !cfg.disable_fs4_shift && !offset_tuning && cfg.rtl_direct == 0
	d.mixer_fs4 = d.fs4_active && !cfg.combine_rot
	s.ingest.combine_rotate = d.fs4_active && cfg.combine_rot

	if cfg.tcp_autotune {
		if tcp, ok := dev.(*rtl_tcp_device_s); ok {
			_ = tcp.set_autotune(true)
		}
	}

	if cfg.rtl_xtal_hz > 0 || cfg.tuner_xtal_hz > 0 {
		if err := dev.set_xtal_freq(cfg.rtl_xtal_hz, cfg.tuner_xtal_hz); err != nil {
			text_color_set(TC_COLOR_ERROR)
			tc_printf("Crystal frequency override failed: %v\n", err)
		}
	}

	if cfg.rtl_testmode {
		_ = dev.set_testmode(true)
	}

	/* Frequency before sample rate, per driver quirk. */

	if err := dev.set_freq(controller_hw_freq(d, c.freqs[0])); err != nil {
		return err
	}
	if err := dev.set_sample_rate(capture); err != nil {
		return err
	}

	if cfg.tuner_bw_hz >= 0 {
		if err := dev.set_tuner_bandwidth(cfg.tuner_bw_hz); err != nil {
			text_color_set(TC_COLOR_DEBUG)
			tc_printf("Tuner bandwidth override failed: %v\n", err)
		}
	}

	/* Reconcile the quantized rate. */

	if actual := dev.get_sample_rate(); actual > 0 && actual != capture {
		d.capture_rate = actual
		d.rate_in = actual >> uint(passes)
		d.rate_out = IfThenElse(cfg.opts.RateOut > d.rate_in, d.rate_in, cfg.opts.RateOut)
		demod_design_channel_lpf(d)
		demod_design_rrc(d)
		fll_design_taps(d)
	}

	if cfg.opts.GainTenthDB < 0 {
		_ = dev.set_auto_gain()
	} else if err := dev.set_gain_nearest(cfg.opts.GainTenthDB); err != nil {
		text_color_set(TC_COLOR_ERROR)
		tc_printf("Gain programming failed: %v\n", err)
	}

	if cfg.opts.PPM != 0 {
		_ = dev.set_ppm(cfg.opts.PPM)
	}

	for _, ig := range cfg.if_gains {
		_ = dev.set_if_gain(ig.stage, ig.tenth_db)
	}

	resamp_design(d)

	demod_reset_on_retune(d, controller_take_pending_sps(c))

	_ = dev.reset_buffer()
	if err := dev.start_async(cfg.opts.BufLen); err != nil {
		return err
	}

	c.mu.Lock()
	c.state = CTRL_STEADY
	c.last_retune_ms = dtime_monotonic_ms()
	c.mu.Unlock()

	s.cold_start_ready.Store(true)

	text_color_set(TC_COLOR_INFO)
	tc_printf("Streaming %d Hz: capture %d, baseband %d, output %d, %s.\n",
		c.freqs[0], d.capture_rate, d.rate_in, demod_output_rate(d),
		IfThenElse(d.cqpsk_enable, "CQPSK", "FM"))

	return nil
}

// The hardware is parked a quarter of the capture rate above the wanted
// channel whenever the fs/4 shift is live.
func controller_hw_freq(d *demod_state_s, freq int64) int64 {
	if d.fs4_active {
		return freq + int64(d.capture_rate/4)
	}
	return freq
}

func controller_take_pending_sps(c *controller_s) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sps = c.pending_sps_override
	c.pending_sps_override = 0
	return sps
}

/*-------------------------------------------------------------------
 *
 * Name:        controller_retune
 *
 * Purpose:     The retune protocol.
 *
 *		1. Gate the DSP worker.
 *		2. Flush the input ring: anything buffered belongs to
 *		   the old frequency.
 *		3. Program the new frequency; mute the first few
 *		   milliseconds of samples so the PLL transient never
 *		   reaches the DSP.
 *		4. Reset the demod per the rules in demod_state.go.
 *		5. Drop the gate, and give the consumer retune_drain_ms
 *		   to finish any stale output before it is cleared.
 *
 *--------------------------------------------------------------------*/

func controller_retune(s *Stream, freq int64) {
	var c = s.ctrl
	var d = s.demod

	s.retune_in_progress.Store(true)

	ring_clear(s.input)

	if err := s.dev.set_freq(controller_hw_freq(d, freq)); err != nil {
		text_color_set(TC_COLOR_ERROR)
		tc_printf("Retune to %d Hz failed: %v\n", freq, err)
	}

	/* Swallow the tuner transient: roughly 5 ms of bytes. */
	s.dev.mute(2 * d.capture_rate / 200)

	var pending = controller_take_pending_sps(c)
	if s.cfg.debug_cqpsk && d.cqpsk_enable {
		text_color_set(TC_COLOR_DEBUG)
		tc_printf("CQPSK retune to %d Hz: sps override %d, costas pending %v\n",
			freq, pending, d.costas_reset_pending)
	}

	demod_reset_on_retune(d, pending)

	s.retune_in_progress.Store(false)

	c.mu.Lock()
	c.last_retune_ms = dtime_monotonic_ms()
	c.mu.Unlock()

	if drain := s.cfg.opts.RetuneDrainMs; drain > 0 {
		SLEEP_MS(drain)
	}
	ring_clear(s.output)
}

/*-------------------------------------------------------------------
 *
 * Name:        controller_thread
 *
 * Purpose:     Thread body: cold start once, then serve retunes and
 *		squelch hops until shutdown.
 *
 *--------------------------------------------------------------------*/

func controller_thread(s *Stream) {
	defer s.wg.Done()

	var c = s.ctrl

	if err := controller_cold_start(s); err != nil {
		text_color_set(TC_COLOR_ERROR)
		tc_printf("Cold start failed: %v\n", err)
		s.open_err <- err
		return
	}
	s.open_err <- nil

	for {
		c.mu.Lock()
		for !c.pending_retune && !c.hop_requested && c.pending_gain < 0 && !c.ppm_pending && !s.should_exit.Load() {
			c.hop_cv.Wait()
		}
		if s.should_exit.Load() {
			c.state = CTRL_EXITING
			c.mu.Unlock()
			return
		}

		var do_retune = c.pending_retune
		var target = c.pending_freq
		c.pending_retune = false

		var do_hop = c.hop_requested
		c.hop_requested = false

		var gain = c.pending_gain
		c.pending_gain = -1

		var do_ppm = c.ppm_pending
		var ppm = c.pending_ppm
		c.ppm_pending = false

		if do_retune {
			c.state = CTRL_RETUNING
		} else if do_hop {
			c.state = CTRL_HOPPING
		}
		c.mu.Unlock()

		if gain >= 0 {
			if err := s.dev.set_gain_nearest(gain); err != nil {
				text_color_set(TC_COLOR_ERROR)
				tc_printf("Gain change to %.1f dB failed: %v\n", float64(gain)/10, err)
			}
		}
		if do_ppm {
			if err := s.dev.set_ppm(ppm); err != nil {
				text_color_set(TC_COLOR_ERROR)
				tc_printf("PPM correction %d failed: %v\n", ppm, err)
			}
		}

		switch {
		case do_retune:
			controller_retune(s, target)
			c.mu.Lock()
			/* An explicit tune pins the scan list if the target is on it. */
			for i, f := range c.freqs {
				if f == target {
					c.freq_now = i
					break
				}
			}
			c.state = CTRL_STEADY
			c.mu.Unlock()

		case do_hop:
			c.mu.Lock()
			var hop_target int64
			if len(c.freqs) > 1 {
				c.freq_now = (c.freq_now + 1) % len(c.freqs)
				hop_target = c.freqs[c.freq_now]
			}
			c.mu.Unlock()

			if hop_target != 0 {
				controller_retune(s, hop_target)
			}
			c.mu.Lock()
			c.state = CTRL_STEADY
			c.mu.Unlock()
		}

		/* Debounce squelch-driven hops a little. */
		if do_hop {
			time.Sleep(10 * time.Millisecond)
		}
	}
}

/* end controller.go */
