package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	Byte-to-baseband ingest, shared by the USB and rtl_tcp
 *		adapters.
 *
 * Description:	The driver callback hands over raw unsigned-8-bit
 *		interleaved I,Q.  This layer:
 *
 *		  1. burns off any muted bytes (tuner transients right
 *		     after a retune),
 *		  2. centers and scales to roughly [-1, +1],
 *		  3. optionally applies the fused fs/4 rotation in the
 *		     same pass, and
 *		  4. drops the whole block on the input ring, or on the
 *		     floor if the ring is full.
 *
 *		It runs on the driver's thread and never blocks.
 *
 *---------------------------------------------------------------*/

import (
	"sync/atomic"
)

type ingest_s struct {
	ring *sample_ring_s

	combine_rotate bool /* fused normalize + fs/4 rotation */
	rotate_phase   int  /* quarter-cycle position, persists across callbacks */

	mute_bytes atomic.Int64 /* bytes still to be zeroed */

	scratch []float64
}

func ingest_create(ring *sample_ring_s, combine_rotate bool, buf_len int) *ingest_s {
	return &ingest_s{ //nolint:exhaustruct
		ring:           ring,
		combine_rotate: combine_rotate,
		scratch:        make([]float64, buf_len),
	}
}

func ingest_mute(ig *ingest_s, bytes int) {
	ig.mute_bytes.Store(int64(bytes))
}

/*-------------------------------------------------------------------
 *
 * Name:        ingest_block
 *
 * Purpose:     Convert one raw transfer and queue it.
 *
 * Description:	Normalization is (b - 127.5) / 127.5.  The fused
 *		rotation multiplies pair n by j^n, the quarter-rate
 *		sequence (+1, +j, -1, -j, ...).  The dongle is parked a
 *		quarter rate above the channel, so the channel sits at
 *		-fs/4 in the raw baseband; the +fs/4 shift brings it to
 *		DC and moves the dongle's DC spur out to +fs/4:
 *
 *		  n%4 == 0:  ( i,  q)
 *		  n%4 == 1:  (-q,  i)
 *		  n%4 == 2:  (-i, -q)
 *		  n%4 == 3:  ( q, -i)
 *
 *--------------------------------------------------------------------*/

func ingest_block(ig *ingest_s, buf []byte) {

	if m := ig.mute_bytes.Load(); m > 0 {
		var z = int(min64(m, int64(len(buf))))
		for k := 0; k < z; k++ {
			buf[k] = 127 /* mid-scale, demodulates to silence */
		}
		ig.mute_bytes.Add(int64(-z))
	}

	var n = len(buf) &^ 1 /* whole complex pairs */
	if len(ig.scratch) < n {
		ig.scratch = make([]float64, n)
	}
	var out = ig.scratch[:n]

	if ig.combine_rotate {
		for k := 0; k < n; k += 2 {
			var i = (float64(buf[k]) - 127.5) / 127.5
			var q = (float64(buf[k+1]) - 127.5) / 127.5
			switch ig.rotate_phase & 3 {
			case 0:
				out[k] = i
				out[k+1] = q
			case 1:
				out[k] = -q
				out[k+1] = i
			case 2:
				out[k] = -i
				out[k+1] = -q
			case 3:
				out[k] = q
				out[k+1] = -i
			}
			ig.rotate_phase++
		}
	} else {
		for k := 0; k < n; k++ {
			out[k] = (float64(buf[k]) - 127.5) / 127.5
		}
	}

	ring_write_block(ig.ring, out)
}

/* end ingest.go */
