package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkOf(t *testing.T) {
	assert.Equal(t, ChunkPos{X: 0, Z: 0}, ChunkOf(BlockPos{X: 15, Y: 70, Z: 0}))
	assert.Equal(t, ChunkPos{X: -1, Z: 2}, ChunkOf(BlockPos{X: -1, Y: 0, Z: 33}))
}

func TestBlockPos_Section(t *testing.T) {
	p := BlockPos{X: -1, Y: -3, Z: 17}
	assert.Equal(t, BlockPos{X: 15, Y: -3, Z: 1}, p.LocalInChunk())
	assert.Equal(t, -1, p.SectionY())
	assert.Equal(t, 13<<8|1<<4|15, p.SectionIndex())
}

func TestChunkPos_OutOfView(t *testing.T) {
	center := ChunkPos{X: 10, Z: -4}
	assert.False(t, ChunkPos{X: 15, Z: -4}.OutOfView(center, 5))
	assert.True(t, ChunkPos{X: 16, Z: -4}.OutOfView(center, 5))
	assert.True(t, ChunkPos{X: 10, Z: -10}.OutOfView(center, 5))
	assert.True(t, ChunkPos{X: 1, Z: 2}.Less(ChunkPos{X: 1, Z: 3}))
	assert.False(t, ChunkPos{X: 2, Z: 0}.Less(ChunkPos{X: 1, Z: 3}))
}

func TestLocation(t *testing.T) {
	l := Location{X: 1, Y: 2, Z: 3, Yaw: 90}
	moved := l.Move(1, 0, 0)
	assert.Equal(t, Location{X: 2, Y: 2, Z: 3, Yaw: 90}, moved)
	assert.InDelta(t, 1.0, l.DistanceTo(moved), 1e-9)
	assert.Equal(t, float32(10), l.WithRotation(10, 5).Yaw)
}
