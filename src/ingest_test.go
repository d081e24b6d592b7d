package borzoi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestNormalization(t *testing.T) {
	var ring = ring_create(1024)
	var ig = ingest_create(ring, false, 64)

	ingest_block(ig, []byte{0, 255, 128, 127})

	var out = make([]float64, 8)
	var n = ring_read_block(ring, out, time.Millisecond)
	require.Equal(t, 4, n)

	assert.InDelta(t, -1.0, out[0], 1e-9)
	assert.InDelta(t, 1.0, out[1], 1e-9)
	assert.InDelta(t, 0.5/127.5, out[2], 1e-9)
	assert.InDelta(t, -0.5/127.5, out[3], 1e-9)
}

func TestIngestFusedRotation(t *testing.T) {
	var ring = ring_create(1024)
	var ig = ingest_create(ring, true, 64)

	/* Four identical pairs at (+1, +1) full scale: the rotation walks
	 * them through the j^n sequence (+1, +j, -1, -j). */
	ingest_block(ig, []byte{255, 255, 255, 255, 255, 255, 255, 255})

	var out = make([]float64, 8)
	require.Equal(t, 8, ring_read_block(ring, out, time.Millisecond))

	assert.InDelta(t, 1, out[0], 1e-9) /* ( i,  q) */
	assert.InDelta(t, 1, out[1], 1e-9)
	assert.InDelta(t, -1, out[2], 1e-9) /* (-q,  i) */
	assert.InDelta(t, 1, out[3], 1e-9)
	assert.InDelta(t, -1, out[4], 1e-9) /* (-i, -q) */
	assert.InDelta(t, -1, out[5], 1e-9)
	assert.InDelta(t, 1, out[6], 1e-9) /* ( q, -i) */
	assert.InDelta(t, -1, out[7], 1e-9)
}

func TestIngestRotationPhasePersists(t *testing.T) {
	var ring = ring_create(1024)
	var ig = ingest_create(ring, true, 64)

	ingest_block(ig, []byte{255, 255, 255, 255}) /* two pairs: phases 0, 1 */
	ingest_block(ig, []byte{255, 255})           /* one pair: phase 2 */

	var out = make([]float64, 6)
	require.Equal(t, 6, ring_read_block(ring, out, time.Millisecond))
	assert.InDelta(t, -1, out[4], 1e-9) /* phase 2 is (-i, -q) */
	assert.InDelta(t, -1, out[5], 1e-9)
}

func TestIngestMuteZeroesTransient(t *testing.T) {
	var ring = ring_create(1024)
	var ig = ingest_create(ring, false, 64)

	ingest_mute(ig, 4)
	ingest_block(ig, []byte{255, 255, 255, 255, 255, 255})

	var out = make([]float64, 6)
	require.Equal(t, 6, ring_read_block(ring, out, time.Millisecond))

	/* First 4 bytes muted to mid-scale, i.e. ~0. */
	for k := 0; k < 4; k++ {
		assert.InDelta(t, 0, out[k], 0.005)
	}
	assert.InDelta(t, 1, out[4], 1e-9)

	/* Mute is spent. */
	ingest_block(ig, []byte{255, 255})
	require.Equal(t, 2, ring_read_block(ring, out, time.Millisecond))
	assert.InDelta(t, 1, out[0], 1e-9)
}

func TestIngestDropOnFullRing(t *testing.T) {
	var ring = ring_create(4)
	var ig = ingest_create(ring, false, 64)

	ingest_block(ig, []byte{128, 128, 128, 128})
	ingest_block(ig, []byte{128, 128, 128, 128}) /* no room: dropped whole */

	assert.Equal(t, 4, ring_used(ring))
	assert.Equal(t, int64(2), ring.producer_drops.Load())
}
