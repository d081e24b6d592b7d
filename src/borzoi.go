// Package borzoi is a software-defined-radio streaming and demodulation
// engine for RTL2832U dongles.  It ingests raw 8-bit I/Q from USB or from a
// networked rtl_tcp server, conditions and demodulates the signal (FM
// discriminator or differential QPSK), and hands a rate-converted sample
// stream to whatever wants to decode voice out of it.
package borzoi

/*
 * Upper bound on the scan/hop frequency list.
 * The controller refuses to open with more than this many entries.
 */

const MAX_FREQS = 1000

/*
 * Number of raw bytes handed to the device callback per transfer.
 * Must be a multiple of 4 so complex pairs never straddle transfers
 * after the fs/4 rotation.
 */

const DEFAULT_BUF_LEN = 16384

/*
 * Halfband decimation cascade.  Each pass halves the rate, so 10 passes
 * covers everything from 2.4 MHz capture down to phone-grade baseband.
 */

const MAX_DOWNSAMPLE_PASSES = 10

/*
 * Stable RTL2832U sample clocks, in Hz.  Capture settings are chosen so
 * rate_in << passes lands as close to one of these as possible.  Rates
 * between 300 kHz and 900 kHz are known to drop samples.
 */

var capture_rate_anchors = []int{960000, 1024000, 1200000, 1536000, 1920000, 2048000, 2400000}

/*
 * Largest FIR kernel designed anywhere in the chain.
 */

const MAX_FILTER_SIZE = 480

// Snapshot ring sizes.  Constellation keeps (I,Q) pairs, eye keeps
// I-channel scalars.

const CONSTELLATION_POINTS = 8192
const EYE_SAMPLES = 16384
