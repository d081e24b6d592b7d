package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	rtl_tcp device adapter.
 *
 * Description:	Speaks the rtl_tcp wire protocol: a 12-byte banner from
 *		the server, then a plain stream of unsigned-8-bit I,Q
 *		bytes mirroring the USB transfer format.  Control runs
 *		the other way as 5-byte commands, one opcode byte and a
 *		big-endian 32-bit argument.
 *
 *		Optional prebuffering holds back the first few tens of
 *		milliseconds so a jittery network link doesn't starve
 *		the DSP right at startup.  The buffer growth happens
 *		strictly before the read pump starts; ring capacity is
 *		immutable after that.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

/* rtl_tcp command opcodes. */

const (
	RTLTCP_CMD_FREQ            = 0x01
	RTLTCP_CMD_SAMPLE_RATE     = 0x02
	RTLTCP_CMD_GAIN_MODE       = 0x03
	RTLTCP_CMD_GAIN            = 0x04
	RTLTCP_CMD_FREQ_CORRECTION = 0x05
	RTLTCP_CMD_IF_GAIN         = 0x06
	RTLTCP_CMD_TEST_MODE       = 0x07
	RTLTCP_CMD_AGC_MODE        = 0x08
	RTLTCP_CMD_DIRECT_SAMPLING = 0x09
	RTLTCP_CMD_OFFSET_TUNING   = 0x0A
	RTLTCP_CMD_RTL_XTAL        = 0x0B
	RTLTCP_CMD_TUNER_XTAL      = 0x0C
	RTLTCP_CMD_GAIN_BY_INDEX   = 0x0D
	RTLTCP_CMD_BIAS_TEE        = 0x0E

	/* Extension understood by cooperating servers: let the server
	 * chase the strongest nearby carrier itself. */
	RTLTCP_CMD_AUTOTUNE = 0x40
)

type rtl_tcp_device_s struct {
	conn   net.Conn
	ingest *ingest_s

	rate      int
	gain      int
	auto_gain bool

	prebuf_ms int

	pump_running bool
	pump_done    chan struct{}
	stop_pump    chan struct{}
}

/*-------------------------------------------------------------------
 *
 * Name:        rtl_tcp_open
 *
 * Purpose:     Connect and consume the banner.
 *
 *--------------------------------------------------------------------*/

func rtl_tcp_open(addr string, ingest *ingest_s, prebuf_ms int) (*rtl_tcp_device_s, error) {
	var conn, err = net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("rtl_tcp %s: %w", addr, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	var banner [12]byte
	if _, err := io.ReadFull(conn, banner[:]); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtl_tcp %s: short banner: %w", addr, err)
	}
	if string(banner[:4]) != "RTL0" {
		conn.Close()
		return nil, fmt.Errorf("rtl_tcp %s: not an rtl_tcp server", addr)
	}

	text_color_set(TC_COLOR_INFO)
	tc_printf("Connected to rtl_tcp at %s (tuner type %d)\n", addr, binary.BigEndian.Uint32(banner[4:8]))

	return &rtl_tcp_device_s{ //nolint:exhaustruct
		conn:      conn,
		ingest:    ingest,
		prebuf_ms: prebuf_ms,
	}, nil
}

func (r *rtl_tcp_device_s) command(op byte, arg uint32) error {
	var msg [5]byte
	msg[0] = op
	binary.BigEndian.PutUint32(msg[1:], arg)
	var _, err = r.conn.Write(msg[:])
	return err
}

func (r *rtl_tcp_device_s) set_freq(hz int64) error {
	return r.command(RTLTCP_CMD_FREQ, uint32(hz))
}

func (r *rtl_tcp_device_s) set_sample_rate(hz int) error {
	if err := r.command(RTLTCP_CMD_SAMPLE_RATE, uint32(hz)); err != nil {
		return err
	}
	r.rate = hz /* rtl_tcp has no read-back; trust the request */
	return nil
}

func (r *rtl_tcp_device_s) get_sample_rate() int {
	return r.rate
}

func (r *rtl_tcp_device_s) set_tuner_bandwidth(hz int) error {
	/* Not in the classic protocol; harmless to skip. */
	_ = hz
	return nil
}

func (r *rtl_tcp_device_s) set_gain_nearest(tenth_db int) error {
	if err := r.command(RTLTCP_CMD_GAIN_MODE, 1); err != nil {
		return err
	}
	r.auto_gain = false
	r.gain = tenth_db
	return r.command(RTLTCP_CMD_GAIN, uint32(tenth_db))
}

func (r *rtl_tcp_device_s) set_auto_gain() error {
	r.auto_gain = true
	return r.command(RTLTCP_CMD_GAIN_MODE, 0)
}

func (r *rtl_tcp_device_s) get_tuner_gain() int {
	return r.gain
}

func (r *rtl_tcp_device_s) is_auto_gain() bool {
	return r.auto_gain
}

func (r *rtl_tcp_device_s) set_ppm(ppm int) error {
	return r.command(RTLTCP_CMD_FREQ_CORRECTION, uint32(ppm))
}

func (r *rtl_tcp_device_s) set_direct_sampling(mode int) error {
	return r.command(RTLTCP_CMD_DIRECT_SAMPLING, uint32(mode))
}

func (r *rtl_tcp_device_s) set_offset_tuning(on bool) error {
	return r.command(RTLTCP_CMD_OFFSET_TUNING, IfThenElse(on, uint32(1), uint32(0)))
}

func (r *rtl_tcp_device_s) set_bias_tee(on bool) error {
	return r.command(RTLTCP_CMD_BIAS_TEE, IfThenElse(on, uint32(1), uint32(0)))
}

func (r *rtl_tcp_device_s) set_testmode(on bool) error {
	return r.command(RTLTCP_CMD_TEST_MODE, IfThenElse(on, uint32(1), uint32(0)))
}

func (r *rtl_tcp_device_s) set_if_gain(stage int, tenth_db int) error {
	return r.command(RTLTCP_CMD_IF_GAIN, uint32(stage)<<16|uint32(uint16(tenth_db)))
}

func (r *rtl_tcp_device_s) set_xtal_freq(rtl_hz int, tuner_hz int) error {
	if rtl_hz > 0 {
		if err := r.command(RTLTCP_CMD_RTL_XTAL, uint32(rtl_hz)); err != nil {
			return err
		}
	}
	if tuner_hz > 0 {
		return r.command(RTLTCP_CMD_TUNER_XTAL, uint32(tuner_hz))
	}
	return nil
}

func (r *rtl_tcp_device_s) set_autotune(on bool) error {
	return r.command(RTLTCP_CMD_AUTOTUNE, IfThenElse(on, uint32(1), uint32(0)))
}

/*-------------------------------------------------------------------
 *
 * Name:        start_async / stop_async
 *
 * Purpose:     The read pump.  Mirrors the USB adapter's callback
 *		cadence by slicing the TCP stream into buf_len chunks.
 *		Prebuffering, when configured, just delays the first
 *		ingest until enough bytes for prebuf_ms have arrived.
 *
 *--------------------------------------------------------------------*/

func (r *rtl_tcp_device_s) start_async(buf_len int) error {
	if r.pump_running {
		return nil
	}
	r.pump_running = true
	r.pump_done = make(chan struct{})
	r.stop_pump = make(chan struct{})

	/* 2 bytes per complex sample. */
	var prebuf_bytes = 0
	if r.prebuf_ms > 0 && r.rate > 0 {
		prebuf_bytes = 2 * r.rate * r.prebuf_ms / 1000
	}

	go func() {
		defer close(r.pump_done)

		var held []byte
		var buf = make([]byte, buf_len)

		for {
			select {
			case <-r.stop_pump:
				return
			default:
			}

			_ = r.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			var _, err = io.ReadFull(r.conn, buf)
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				text_color_set(TC_COLOR_ERROR)
				tc_printf("rtl_tcp read ended: %v\n", err)
				return
			}

			if len(held) < prebuf_bytes {
				/* Warming up: hold everything back, then release
				 * the whole slab at once so the DSP starts with a
				 * cushion against network jitter. */
				held = append(held, buf...)
				if len(held) >= prebuf_bytes {
					ingest_block(r.ingest, held)
					held = held[:0]
					prebuf_bytes = 0
				}
				continue
			}

			ingest_block(r.ingest, buf)
		}
	}()

	return nil
}

func (r *rtl_tcp_device_s) stop_async() {
	if !r.pump_running {
		return
	}
	r.pump_running = false
	close(r.stop_pump)
	_ = r.conn.SetReadDeadline(time.Now())
	<-r.pump_done
}

func (r *rtl_tcp_device_s) reset_buffer() error {
	return nil
}

func (r *rtl_tcp_device_s) mute(bytes int) {
	ingest_mute(r.ingest, bytes)
}

func (r *rtl_tcp_device_s) destroy() {
	r.stop_async()
	_ = r.conn.Close()
}

/* end rtl_tcp.go */
