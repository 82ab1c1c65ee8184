package vec

// BlockPos представляет позицию блока в мире
type BlockPos struct {
	X int
	Y int
	Z int
}

// LocalInChunk возвращает координаты внутри столбца: x, z в [0,16), y без изменений
func (p BlockPos) LocalInChunk() BlockPos {
	return BlockPos{X: p.X & 0xF, Y: p.Y, Z: p.Z & 0xF} // Модуль 16
}

// SectionY возвращает номер секции по высоте
func (p BlockPos) SectionY() int {
	return p.Y >> 4
}

// SectionIndex возвращает индекс блока внутри секции 16x16x16
func (p BlockPos) SectionIndex() int {
	return (p.Y&0xF)<<8 | (p.Z&0xF)<<4 | p.X&0xF
}

// Add складывает две позиции
func (p BlockPos) Add(other BlockPos) BlockPos {
	return BlockPos{
		X: p.X + other.X,
		Y: p.Y + other.Y,
		Z: p.Z + other.Z,
	}
}
