package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:	Sample capture for offline replay and debugging.
 *
 * Description:	Takes the samples the consumer reads from the stream
 *		(FM audio, or interleaved symbols in CQPSK mode) and
 *		writes little-endian float32 to a timestamped
 *		file.  File naming uses the same strftime patterns as
 *		every other capture tool, so directories sort sanely.
 *
 *------------------------------------------------------------------*/

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/lestrrat-go/strftime"
)

const RECORDER_NAME_PATTERN = "borzoi-%Y%m%d-%H%M%S.iq"

type recorder_s struct {
	f   *os.File
	w   *bufio.Writer
	n   int64 /* samples written */
	max int64 /* 0 = unbounded */
}

/*-------------------------------------------------------------------
 *
 * Name:        recorder_open
 *
 * Purpose:	Create the capture file.  seconds bounds the recording;
 *		0 records until closed.
 *
 *--------------------------------------------------------------------*/

func recorder_open(dir string, rate int, seconds int) (*recorder_s, error) {
	var pattern = RECORDER_NAME_PATTERN
	if dir != "" {
		pattern = dir + "/" + RECORDER_NAME_PATTERN
	}

	var name, err = strftime.Format(pattern, time.Now())
	if err != nil {
		return nil, fmt.Errorf("recorder name: %w", err)
	}

	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}

	text_color_set(TC_COLOR_REC)
	tc_printf("Recording to %s\n", name)

	var max = int64(0)
	if seconds > 0 {
		max = int64(seconds) * int64(rate)
	}

	return &recorder_s{
		f:   f,
		w:   bufio.NewWriterSize(f, 1<<16),
		n:   0,
		max: max,
	}, nil
}

// recorder_write appends samples.  Returns false once the bound is hit.
func recorder_write(r *recorder_s, samples []float64) bool {
	for _, v := range samples {
		if r.max > 0 && r.n >= r.max {
			return false
		}
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(v)))
		_, _ = r.w.Write(b[:])
		r.n++
	}
	return r.max == 0 || r.n < r.max
}

func recorder_close(r *recorder_s) error {
	if err := r.w.Flush(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}

/* Exported wrappers for the capture cmd. */

type Recorder = recorder_s

func RecorderOpen(dir string, rate int, seconds int) (*Recorder, error) {
	return recorder_open(dir, rate, seconds)
}

func (r *Recorder) Write(samples []float64) bool { return recorder_write(r, samples) }
func (r *Recorder) Close() error                 { return recorder_close(r) }

/* end recorder.go */
