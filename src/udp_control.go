package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	External control surface: a single UDP port accepting
 *		integer-hertz retune requests.
 *
 * Description:	Stateless adapter.  Each datagram is parsed as a decimal
 *		frequency in Hz and marshalled onto the controller;
 *		garbage is ignored with a debug note.  Lives and dies
 *		with the stream.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

type udp_control_s struct {
	conn *net.UDPConn
	done chan struct{}
}

func udp_control_start(s *Stream, port int) (*udp_control_s, error) {
	var addr = &net.UDPAddr{Port: port} //nolint:exhaustruct
	var conn, err = net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp control port %d: %w", port, err)
	}

	var u = &udp_control_s{
		conn: conn,
		done: make(chan struct{}),
	}

	text_color_set(TC_COLOR_INFO)
	tc_printf("UDP retune control listening on port %d\n", port)

	go func() {
		defer close(u.done)
		var buf [64]byte

		for !s.should_exit.Load() {
			_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			var n, _, err = conn.ReadFromUDP(buf[:])
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				return
			}

			var text = strings.TrimSpace(string(buf[:n]))
			var hz, perr = strconv.ParseInt(text, 10, 64)
			if perr != nil || hz <= 0 {
				text_color_set(TC_COLOR_DEBUG)
				tc_printf("UDP control: ignoring %q\n", text)
				continue
			}

			controller_enqueue_retune(s.ctrl, hz)
		}
	}()

	return u, nil
}

func udp_control_stop(u *udp_control_s) {
	if u == nil {
		return
	}
	_ = u.conn.Close()
	<-u.done
}

/* end udp_control.go */
