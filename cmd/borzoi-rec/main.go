package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Capture demodulated (or symbol) samples to a
 *		timestamped file for offline replay and debugging.
 *
 *---------------------------------------------------------------*/

import (
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	borzoi "github.com/borzoisdr/borzoi/src"
)

func main() {
	var device = pflag.IntP("device", "d", 0, "RTL-SDR device index.")
	var tcpAddr = pflag.StringP("rtl-tcp", "r", "", "Connect to an rtl_tcp server at host:port instead of USB.")
	var freqsStr = pflag.StringP("freq", "f", "", "Frequency in Hz.")
	var cqpsk = pflag.Bool("cqpsk", false, "Record QPSK symbols instead of FM audio.")
	var gain = pflag.IntP("gain", "g", -1, "Tuner gain in tenths of dB.  Negative selects driver auto gain.")
	var seconds = pflag.Int("seconds", 0, "Stop after this many seconds of samples (0 = until interrupted).")
	var dir = pflag.String("dir", "", "Directory for the capture file.")
	pflag.Parse()

	var logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "borzoi-rec"}) //nolint:exhaustruct

	var freqs []int64
	for _, part := range strings.Split(*freqsStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var hz, err = strconv.ParseInt(part, 10, 64)
		if err != nil {
			logger.Fatal("Bad frequency", "value", part)
		}
		freqs = append(freqs, hz)
	}

	var stream, err = borzoi.StreamOpen(borzoi.Options{ //nolint:exhaustruct
		DeviceIndex: *device,
		TCPAddr:     *tcpAddr,
		Freqs:       freqs,
		CQPSK:       *cqpsk,
		GainTenthDB: *gain,
	})
	if err != nil {
		logger.Fatal("Open failed", "err", err)
	}
	defer stream.Close()

	rec, err := borzoi.RecorderOpen(*dir, stream.OutputRate(), *seconds)
	if err != nil {
		logger.Fatal("Recorder open failed", "err", err)
	}

	var sig = make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		stream.SoftStop()
	}()

	var buf = make([]float64, 4096)
	for !stream.Stopped() {
		var n = stream.Read(buf)
		if n <= 0 {
			continue
		}
		if !rec.Write(buf[:n]) {
			break
		}
	}

	if err := rec.Close(); err != nil {
		logger.Error("Recorder close", "err", err)
	}
}
