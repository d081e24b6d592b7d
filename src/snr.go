package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	Per-modulation SNR estimators and the atomics they
 *		publish through.
 *
 * Description:	Estimates run inside the DSP worker's block, so they are
 *		single-threaded with the demodulator.  Results land in
 *		one-writer atomics (float64 bits in a Uint64) that the
 *		status line and the PPM trainer read with
 *		relaxed expectations.
 *
 *		All estimates share a bias correction:
 *
 *		    snr -= estimator_bias + 10*log10(Bn / Rs)
 *
 *		where Bn is the noise-equivalent bandwidth of the active
 *		channel filter (tabulated at 24 kHz and scaled linearly
 *		with the output rate) and Rs is the symbol rate.
 *
 *---------------------------------------------------------------*/

import (
	"math"
	"sort"
	"sync/atomic"
)

type snr_mode_e int

const (
	SNR_MODE_C4FM snr_mode_e = iota
	SNR_MODE_GFSK
	SNR_MODE_QPSK
	SNR_MODE_COUNT
)

const SNR_SOURCE_DIRECT = 1
const SNR_SOURCE_FALLBACK = 2

const snr_bias_c4fm = 5.73
const snr_bias_2level = 1.92

const snr_ema_alpha = 0.4
const snr_fallback_blend = 0.2

/* Missed-update budget before falling back to the scope rings. */
const snr_stale_c4fm = 50
const snr_stale_qpsk = 10

type metrics_s struct {
	snr_bits   [SNR_MODE_COUNT]atomic.Uint64 /* dB as float64 bits */
	snr_at_ms  [SNR_MODE_COUNT]atomic.Int64
	snr_source [SNR_MODE_COUNT]atomic.Int32
	snr_missed [SNR_MODE_COUNT]atomic.Int64

	channel_pwr_bits atomic.Uint64
	ted_bias_bits    atomic.Uint64
}

func metrics_create() *metrics_s {
	var m = &metrics_s{} //nolint:exhaustruct
	for k := 0; k < int(SNR_MODE_COUNT); k++ {
		m.snr_bits[k].Store(math.Float64bits(0))
	}
	return m
}

func metrics_snr(m *metrics_s, mode snr_mode_e) (float64, int64, int32) {
	return math.Float64frombits(m.snr_bits[mode].Load()),
		m.snr_at_ms[mode].Load(),
		m.snr_source[mode].Load()
}

func metrics_publish_snr(m *metrics_s, mode snr_mode_e, snr_db float64, source int32) {
	var prev = math.Float64frombits(m.snr_bits[mode].Load())
	var alpha = IfThenElse(source == SNR_SOURCE_FALLBACK, snr_fallback_blend, snr_ema_alpha)
	if m.snr_at_ms[mode].Load() == 0 {
		prev = snr_db
	}
	var next = prev + alpha*(snr_db-prev)

	m.snr_bits[mode].Store(math.Float64bits(next))
	m.snr_at_ms[mode].Store(dtime_monotonic_ms())
	m.snr_source[mode].Store(source)
	m.snr_missed[mode].Store(0)
}

func metrics_channel_pwr(m *metrics_s) float64 {
	return math.Float64frombits(m.channel_pwr_bits.Load())
}

/*-------------------------------------------------------------------
 *
 * Name:        snr_bias_total
 *
 * Purpose:     Mode bias plus the bandwidth/symbol-rate correction.
 *
 *--------------------------------------------------------------------*/

func snr_bias_total(d *demod_state_s, estimator_bias float64) float64 {
	var bn = lpf_profile_noise_bw_24k[d.channel_lpf_profile] * float64(d.rate_out) / 24000.0
	var rs = float64(d.rate_out) / math.Max(d.ted_sps, 1)
	return estimator_bias + 10*math.Log10(bn/rs)
}

/*-------------------------------------------------------------------
 *
 * Name:        snr_cluster_ratio
 *
 * Purpose:     Shared machinery for the level-clustered estimators.
 *		Split the samples into bins at the given boundaries,
 *		then return sigma2(signal) / sigma2(noise): the spread of
 *		the cluster means over the spread within clusters.
 *
 *--------------------------------------------------------------------*/

func snr_cluster_ratio(samples []float64, bounds []float64) float64 {
	var nbins = len(bounds) + 1
	var count = make([]float64, nbins)
	var mean = make([]float64, nbins)
	var m2 = make([]float64, nbins)

	for _, v := range samples {
		var b = 0
		for b < len(bounds) && v > bounds[b] {
			b++
		}
		count[b]++
		var delta = v - mean[b]
		mean[b] += delta / count[b]
		m2[b] += delta * (v - mean[b])
	}

	var total float64
	var grand float64
	for b := 0; b < nbins; b++ {
		grand += mean[b] * count[b]
		total += count[b]
	}
	if total < float64(2*nbins) {
		return 0
	}
	grand /= total

	var sig, noise float64
	for b := 0; b < nbins; b++ {
		if count[b] == 0 {
			continue
		}
		sig += count[b] * (mean[b] - grand) * (mean[b] - grand)
		noise += m2[b]
	}
	sig /= total
	noise /= total

	if noise <= 0 {
		return 0
	}
	return sig / noise
}

/*-------------------------------------------------------------------
 *
 * Name:        snr_c4fm_estimate / snr_gfsk_estimate
 *
 * Purpose:     Level-domain SNR from the demodulated FSK waveform.
 *
 * Description:	Only samples close to the symbol centers count (within
 *		sps/10 of the mid-sample), so filter transitions don't
 *		pollute the clusters.  C4FM splits at the quartiles into
 *		four levels; GFSK splits at the median into two.
 *
 * Returns:	Corrected SNR in dB, and ok.
 *
 *--------------------------------------------------------------------*/

func snr_symbol_window(block []float64, sps float64) []float64 {
	if sps < 2 {
		return block
	}
	var tol = sps / 10
	var mid = sps / 2

	var out []float64
	for k := range block {
		var phase = math.Mod(float64(k), sps)
		if math.Abs(phase-mid) <= tol {
			out = append(out, block[k])
		}
	}
	return out
}

func snr_quartiles(samples []float64) (float64, float64, float64) {
	var sorted = make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	var n = len(sorted)
	return sorted[n/4], sorted[n/2], sorted[3*n/4]
}

func snr_c4fm_estimate(d *demod_state_s, block []float64) (float64, bool) {
	var win = snr_symbol_window(block, d.ted_sps)
	if len(win) < 16 {
		return 0, false
	}

	var q1, q2, q3 = snr_quartiles(win)
	var ratio = snr_cluster_ratio(win, []float64{q1, q2, q3})
	if ratio <= 0 {
		return 0, false
	}

	return 10*math.Log10(ratio) - snr_bias_total(d, snr_bias_c4fm), true
}

func snr_gfsk_estimate(d *demod_state_s, block []float64) (float64, bool) {
	var win = snr_symbol_window(block, d.ted_sps)
	if len(win) < 16 {
		return 0, false
	}

	var _, median, _ = snr_quartiles(win)
	var ratio = snr_cluster_ratio(win, []float64{median})
	if ratio <= 0 {
		return 0, false
	}

	return 10*math.Log10(ratio) - snr_bias_total(d, snr_bias_2level), true
}

/*-------------------------------------------------------------------
 *
 * Name:        snr_qpsk_estimate
 *
 * Purpose:     EVM-based SNR from recovered symbols.
 *
 * Description:	Symbol clusters may sit on the axes or on the diagonals
 *		depending on where the Costas loop settled, so both
 *		target sets are evaluated and the better ratio wins.
 *
 *--------------------------------------------------------------------*/

func snr_qpsk_estimate(d *demod_state_s, symbols []float64) (float64, bool) {
	var pairs = len(symbols) / 2
	if pairs < 8 {
		return 0, false
	}

	/* Average magnitude sets the target radius. */
	var mag float64
	for p := 0; p < pairs; p++ {
		mag += math.Hypot(symbols[2*p], symbols[2*p+1])
	}
	mag /= float64(pairs)
	if mag <= 0 {
		return 0, false
	}

	var axis_ratio = qpsk_evm_ratio(symbols, pairs, mag, false)
	var diag_ratio = qpsk_evm_ratio(symbols, pairs, mag, true)
	var ratio = math.Max(axis_ratio, diag_ratio)
	if ratio <= 0 {
		return 0, false
	}

	return 10*math.Log10(ratio) - snr_bias_total(d, snr_bias_2level), true
}

func qpsk_evm_ratio(symbols []float64, pairs int, mag float64, diagonal bool) float64 {
	var sig = mag * mag
	var err float64

	var d = mag / math.Sqrt2

	for p := 0; p < pairs; p++ {
		var i = symbols[2*p]
		var q = symbols[2*p+1]

		var ti, tq float64
		if diagonal {
			ti = IfThenElse(i >= 0, d, -d)
			tq = IfThenElse(q >= 0, d, -d)
		} else {
			if math.Abs(i) >= math.Abs(q) {
				ti = IfThenElse(i >= 0, mag, -mag)
				tq = 0
			} else {
				ti = 0
				tq = IfThenElse(q >= 0, mag, -mag)
			}
		}

		err += (i-ti)*(i-ti) + (q-tq)*(q-tq)
	}
	err /= float64(pairs)

	if err <= 0 {
		return 0
	}
	return sig / err
}

/*-------------------------------------------------------------------
 *
 * Name:        estimators_update
 *
 * Purpose:     Run after full_demod on every block: publish per-mode
 *		SNR, channel power, and the TED bias.  Modes without a
 *		direct update this block age out and eventually fall
 *		back to a scope-ring estimate.
 *
 *--------------------------------------------------------------------*/

func estimators_update(m *metrics_s, d *demod_state_s, sc *scope_s) {

	m.channel_pwr_bits.Store(math.Float64bits(d.channel_pwr))
	m.ted_bias_bits.Store(math.Float64bits(d.ted_e_ema))

	var block = d.lowpassed[:d.lp_len]

	if d.cqpsk_enable {
		if snr, ok := snr_qpsk_estimate(d, block); ok {
			metrics_publish_snr(m, SNR_MODE_QPSK, snr, SNR_SOURCE_DIRECT)
		} else {
			m.snr_missed[SNR_MODE_QPSK].Add(1)
		}
		m.snr_missed[SNR_MODE_C4FM].Add(1)
		m.snr_missed[SNR_MODE_GFSK].Add(1)
	} else {
		if snr, ok := snr_c4fm_estimate(d, block); ok {
			metrics_publish_snr(m, SNR_MODE_C4FM, snr, SNR_SOURCE_DIRECT)
		} else {
			m.snr_missed[SNR_MODE_C4FM].Add(1)
		}
		if snr, ok := snr_gfsk_estimate(d, block); ok {
			metrics_publish_snr(m, SNR_MODE_GFSK, snr, SNR_SOURCE_DIRECT)
		} else {
			m.snr_missed[SNR_MODE_GFSK].Add(1)
		}
		m.snr_missed[SNR_MODE_QPSK].Add(1)
	}

	estimators_fallback(m, d, sc)
}

// Stale direct paths get a constellation / eye based stand-in, blended
// in gently and tagged as fallback.
func estimators_fallback(m *metrics_s, d *demod_state_s, sc *scope_s) {

	if m.snr_missed[SNR_MODE_QPSK].Load() >= snr_stale_qpsk && d.cqpsk_enable {
		var pts = make([]float64, 2*512)
		var n = constellation_get(sc, pts, 512)
		if n >= 8 {
			if snr, ok := snr_qpsk_estimate(d, pts[:2*n]); ok {
				metrics_publish_snr(m, SNR_MODE_QPSK, snr, SNR_SOURCE_FALLBACK)
			}
		}
	}

	if !d.cqpsk_enable {
		for _, mode := range []snr_mode_e{SNR_MODE_C4FM, SNR_MODE_GFSK} {
			if m.snr_missed[mode].Load() < snr_stale_c4fm {
				continue
			}
			var eye = make([]float64, 2048)
			var n, _ = eye_get(sc, eye, 2048)
			if n < 64 {
				continue
			}
			var est float64
			var ok bool
			if mode == SNR_MODE_C4FM {
				est, ok = snr_c4fm_estimate(d, eye[:n])
			} else {
				est, ok = snr_gfsk_estimate(d, eye[:n])
			}
			if ok {
				metrics_publish_snr(m, mode, est, SNR_SOURCE_FALLBACK)
			}
		}
	}
}

/* end snr.go */
