package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Command line front end for the borzoi SDR stream:
 *		open a dongle (or rtl_tcp server), demodulate, and
 *		either play the audio or pipe raw samples to stdout
 *		for a downstream voice decoder.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
	"github.com/spf13/pflag"

	borzoi "github.com/borzoisdr/borzoi/src"
)

func main() {
	var device = pflag.IntP("device", "d", 0, "RTL-SDR device index.")
	var tcpAddr = pflag.StringP("rtl-tcp", "r", "", "Connect to an rtl_tcp server at host:port instead of USB.")
	var freqsStr = pflag.StringP("freq", "f", "", "Frequency list in Hz, comma separated.  More than one enables scanning.")
	var presetFile = pflag.String("preset-file", "", "Preset YAML file path (default: search list).")
	var presetName = pflag.String("preset", "", "Load the frequency list from a named preset.")
	var cqpsk = pflag.Bool("cqpsk", false, "Differential QPSK symbol output instead of FM audio.")
	var gain = pflag.IntP("gain", "g", -1, "Tuner gain in tenths of dB.  Negative selects driver auto gain.")
	var ppm = pflag.IntP("ppm", "p", 0, "Frequency correction in parts per million.")
	var squelch = pflag.IntP("squelch", "s", 0, "Squelch level (power, 0 disables).")
	var rateOut = pflag.Int("rate", 0, "Demodulated output rate in Hz (0 = default).")
	var resamp = pflag.Int("resamp", 0, "Resample FM audio to this rate (0 disables).")
	var sps = pflag.Int("sps", 0, "Force TED samples per symbol (4 = P25 Phase 2, 5 = Phase 1).")
	var deemph = pflag.Int("deemph", 0, "FM deemphasis time constant in microseconds (50, 75, or 750; 0 disables).")
	var udpPort = pflag.Int("udp-port", 0, "Accept integer-hertz retune datagrams on this UDP port.")
	var announce = pflag.Bool("announce", false, "Announce the UDP control port via DNS-SD.")
	var play = pflag.Bool("play", false, "Play FM audio on the default output device.")
	var status = pflag.Bool("status", false, "Print a once-a-second status line.")
	var color = pflag.Bool("color", true, "Colored terminal output.")
	var version = pflag.BoolP("version", "V", false, "Print version and exit.")
	pflag.Parse()

	if *version {
		borzoi.PrintVersion(false)
		return
	}

	var logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "borzoi"}) //nolint:exhaustruct

	var freqs []int64
	if *presetName != "" {
		var loaded, err = borzoi.PresetLoad(*presetFile, *presetName)
		if err != nil {
			logger.Fatal("Preset load failed", "err", err)
		}
		freqs = loaded
	}
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

	var opts = borzoi.Options{ //nolint:exhaustruct
		DeviceIndex:     *device,
		TCPAddr:         *tcpAddr,
		Freqs:           freqs,
		CQPSK:           *cqpsk,
		GainTenthDB:     *gain,
		PPM:             *ppm,
		SquelchLevel:    float64(*squelch),
		RateOut:         *rateOut,
		ResampTargetHz:  *resamp,
		TEDSPSOverride:  *sps,
		DeemphasisTauUs: *deemph,
		UDPPort:         *udpPort,
		Announce:        *announce,
		EnableColor:     *color,
	}

	var stream, err = borzoi.StreamOpen(opts)
	if err != nil {
		logger.Fatal("Open failed", "err", err)
	}
	defer stream.Close()

	logger.Info("Streaming", "rate", stream.OutputRate(), "channels", len(freqs))

	if *status {
		stream.StatusLine()
	}

	var sig = make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("Stopping")
		stream.SoftStop()
	}()

	if *play && !*cqpsk {
		if err := playAudio(stream, logger); err != nil {
			logger.Fatal("Audio output failed", "err", err)
		}
		return
	}

	pipeStdout(stream)
}

/* Raw little-endian float32 on stdout, ready for a vocoder. */

func pipeStdout(stream *borzoi.Stream) {
	var buf = make([]float64, 4096)
	var raw = make([]byte, 4*len(buf))

	for !stream.Stopped() {
		var n = stream.Read(buf)
		if n <= 0 {
			continue
		}
		for k := 0; k < n; k++ {
			binary.LittleEndian.PutUint32(raw[4*k:], math.Float32bits(float32(buf[k])))
		}
		if _, err := os.Stdout.Write(raw[:4*n]); err != nil {
			return
		}
	}
}

/* Live playback through portaudio. */

func playAudio(stream *borzoi.Stream, logger *log.Logger) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	defer portaudio.Terminate()

	var rate = stream.OutputRate()
	var buf = make([]float64, 2048)

	out, err := portaudio.OpenDefaultStream(0, 1, float64(rate), len(buf), func(frames []float32) {
		var n = stream.Read(buf[:len(frames)])
		for k := range frames {
			if k < n {
				frames[k] = float32(buf[k])
			} else {
				frames[k] = 0
			}
		}
	})
	if err != nil {
		return err
	}
	defer out.Close()

	if err := out.Start(); err != nil {
		return err
	}
	logger.Info("Playing", "rate", rate)

	for !stream.Stopped() {
		borzoi.SLEEP_MS(100)
	}
	return out.Stop()
}
