package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	USB device adapter for RTL2832U dongles.
 *
 * Description:	Thin ownership layer over gortlsdr.  Only the controller
 *		thread calls the register-programming side; the async
 *		read callback runs on the driver's thread and goes
 *		straight into the ingest path.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"

	rtl "github.com/jpoirier/gortlsdr"
)

/* What the controller needs from any sample source. */

type device_s interface {
	set_freq(hz int64) error
	set_sample_rate(hz int) error
	get_sample_rate() int
	set_tuner_bandwidth(hz int) error
	set_gain_nearest(tenth_db int) error
	set_auto_gain() error
	get_tuner_gain() int
	is_auto_gain() bool
	set_ppm(ppm int) error
	set_direct_sampling(mode int) error
	set_offset_tuning(on bool) error
	set_bias_tee(on bool) error
	set_testmode(on bool) error
	set_if_gain(stage int, tenth_db int) error
	set_xtal_freq(rtl_hz int, tuner_hz int) error
	start_async(buf_len int) error
	stop_async()
	reset_buffer() error
	mute(bytes int)
	destroy()
}

type rtl_device_s struct {
	dev    *rtl.Context
	ingest *ingest_s

	rate      int
	auto_gain bool

	async_running bool
	async_done    chan struct{}
}

/*-------------------------------------------------------------------
 *
 * Name:        rtl_device_open
 *
 * Purpose:     Open and minimally sanity-check a dongle by index.
 *
 *--------------------------------------------------------------------*/

func rtl_device_open(index int, ingest *ingest_s) (*rtl_device_s, error) {
	if rtl.GetDeviceCount() <= index {
		return nil, fmt.Errorf("rtl device %d: not present", index)
	}

	var dev, err = rtl.Open(index)
	if err != nil {
		return nil, fmt.Errorf("rtl device %d: %w", index, err)
	}

	text_color_set(TC_COLOR_INFO)
	tc_printf("Opened RTL-SDR device %d: %s\n", index, rtl.GetDeviceName(index))

	return &rtl_device_s{ //nolint:exhaustruct
		dev:    dev,
		ingest: ingest,
	}, nil
}

func (r *rtl_device_s) set_freq(hz int64) error {
	return r.dev.SetCenterFreq(int(hz))
}

func (r *rtl_device_s) set_sample_rate(hz int) error {
	if err := r.dev.SetSampleRate(hz); err != nil {
		return err
	}
	r.rate = r.dev.GetSampleRate()
	return nil
}

func (r *rtl_device_s) get_sample_rate() int {
	if r.rate == 0 {
		r.rate = r.dev.GetSampleRate()
	}
	return r.rate
}

func (r *rtl_device_s) set_tuner_bandwidth(hz int) error {
	return r.dev.SetTunerBw(hz)
}

/*
 * Gain is snapped to the nearest value the tuner actually supports.
 */
func (r *rtl_device_s) set_gain_nearest(tenth_db int) error {
	if err := r.dev.SetTunerGainMode(true); err != nil {
		return err
	}
	r.auto_gain = false

	var gains, err = r.dev.GetTunerGains()
	if err != nil || len(gains) == 0 {
		return r.dev.SetTunerGain(tenth_db)
	}

	var best = gains[0]
	for _, g := range gains {
		if abs_int(g-tenth_db) < abs_int(best-tenth_db) {
			best = g
		}
	}
	return r.dev.SetTunerGain(best)
}

func (r *rtl_device_s) set_auto_gain() error {
	r.auto_gain = true
	return r.dev.SetTunerGainMode(false)
}

func (r *rtl_device_s) get_tuner_gain() int {
	return r.dev.GetTunerGain()
}

func (r *rtl_device_s) is_auto_gain() bool {
	return r.auto_gain
}

func (r *rtl_device_s) set_ppm(ppm int) error {
	return r.dev.SetFreqCorrection(ppm)
}

func (r *rtl_device_s) set_direct_sampling(mode int) error {
	return r.dev.SetDirectSampling(mode)
}

func (r *rtl_device_s) set_offset_tuning(on bool) error {
	return r.dev.SetOffsetTuning(on)
}

func (r *rtl_device_s) set_bias_tee(on bool) error {
	return r.dev.SetBiasTee(on)
}

func (r *rtl_device_s) set_testmode(on bool) error {
	return r.dev.SetTestMode(on)
}

func (r *rtl_device_s) set_if_gain(stage int, tenth_db int) error {
	return r.dev.SetTunerIfGain(stage, tenth_db)
}

func (r *rtl_device_s) set_xtal_freq(rtl_hz int, tuner_hz int) error {
	return r.dev.SetXtalFreq(rtl_hz, tuner_hz)
}

/*-------------------------------------------------------------------
 *
 * Name:        start_async / stop_async
 *
 * Purpose:     Drive the libusb transfer loop.  ReadAsync blocks until
 *		CancelAsync, so it gets its own goroutine; the callback
 *		it invokes must never block, which the ingest path
 *		honors by dropping on a full ring.
 *
 *--------------------------------------------------------------------*/

func (r *rtl_device_s) start_async(buf_len int) error {
	if r.async_running {
		return nil
	}
	r.async_running = true
	r.async_done = make(chan struct{})

	go func() {
		defer close(r.async_done)
		var err = r.dev.ReadAsync(func(buf []byte) {
			ingest_block(r.ingest, buf)
		}, nil, 0, buf_len)
		if err != nil {
			text_color_set(TC_COLOR_ERROR)
			tc_printf("RTL async read ended: %v\n", err)
		}
	}()

	return nil
}

func (r *rtl_device_s) stop_async() {
	if !r.async_running {
		return
	}
	r.async_running = false
	_ = r.dev.CancelAsync()
	<-r.async_done
}

func (r *rtl_device_s) reset_buffer() error {
	return r.dev.ResetBuffer()
}

func (r *rtl_device_s) mute(bytes int) {
	ingest_mute(r.ingest, bytes)
}

func (r *rtl_device_s) destroy() {
	r.stop_async()
	_ = r.dev.Close()
}

func abs_int(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

/* end rtl_device.go */
