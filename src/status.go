package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:	Once-a-second operator status line.
 *
 * Description:	A small observer goroutine reading the published
 *		atomics plus the CQPSK mode flag and the tuner gain.  It
 *		writes nothing, so it can run (or not) without anybody
 *		noticing.
 *
 *------------------------------------------------------------------*/

import (
	"math"
	"time"
)

func status_thread(s *Stream) {
	defer s.wg.Done()

	var tick = time.NewTicker(time.Second)
	defer tick.Stop()

	for !s.should_exit.Load() {
		select {
		case <-tick.C:
		case <-s.status_stop:
			return
		}
		if !s.cold_start_ready.Load() {
			continue
		}

		var mode = IfThenElse(s.demod.cqpsk_enable, SNR_MODE_QPSK, SNR_MODE_C4FM)
		var snr, at, src = metrics_snr(s.metrics, mode)
		var pwr_db = 10 * math.Log10(metrics_channel_pwr(s.metrics)+1e-20)

		var age = "-"
		if at != 0 {
			age = (time.Duration(dtime_monotonic_ms()-at) * time.Millisecond).String()
		}

		text_color_set(TC_COLOR_INFO)
		tc_printf("f=%d Hz  pwr=%.1f dB  snr=%.1f dB (%s, %s)  gain=%.1f dB  drops=%d",
			controller_current_freq(s.ctrl), pwr_db, snr,
			IfThenElse(src == SNR_SOURCE_FALLBACK, "fallback", "direct"), age,
			float64(s.dev.get_tuner_gain())/10, s.input.producer_drops.Load())

		if s.autoppm != nil && s.autoppm.enabled.Load() {
			var st = auto_ppm_get_status(s.autoppm)
			switch {
			case st.Locked:
				tc_printf("  ppm=locked(%.0f)", st.LockPPM)
			case st.Training:
				tc_printf("  ppm=training(df %.0f Hz)", st.DfHz)
			default:
				tc_printf("  ppm=idle")
			}
		}
		tc_printf("\n")
	}
}

// StatusLine starts the periodic status printer.  Call once, after open.
func (s *Stream) StatusLine() {
	if s.status_stop != nil {
		return
	}
	s.status_stop = make(chan struct{})
	s.wg.Add(1)
	go status_thread(s)
}

/* end status.go */
