package vec

// ChunkPos представляет координаты столбца чанка (X, Z)
type ChunkPos struct {
	X, Z int32
}

// ChunkOf возвращает столбец, которому принадлежит блок
func ChunkOf(p BlockPos) ChunkPos {
	return ChunkPos{X: int32(p.X >> 4), Z: int32(p.Z >> 4)} // Деление на 16
}

// Less задаёт детерминированный порядок обхода столбцов: сначала X, затем Z
func (c ChunkPos) Less(other ChunkPos) bool {
	if c.X != other.X {
		return c.X < other.X
	}
	return c.Z < other.Z
}

// OutOfView проверяет, лежит ли столбец дальше radius от центра хотя бы по одной оси
func (c ChunkPos) OutOfView(center ChunkPos, radius int32) bool {
	return abs(c.X-center.X) > radius || abs(c.Z-center.Z) > radius
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
