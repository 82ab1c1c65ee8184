package vec

import "math"

// Location представляет положение и поворот сущности
type Location struct {
	X, Y, Z    float64
	Yaw, Pitch float32
}

// Move возвращает положение, смещённое на dx, dy, dz
func (l Location) Move(dx, dy, dz float64) Location {
	return Location{X: l.X + dx, Y: l.Y + dy, Z: l.Z + dz, Yaw: l.Yaw, Pitch: l.Pitch}
}

// WithRotation возвращает положение с новым поворотом
func (l Location) WithRotation(yaw, pitch float32) Location {
	l.Yaw, l.Pitch = yaw, pitch
	return l
}

// DistanceTo вычисляет расстояние до другой точки
func (l Location) DistanceTo(other Location) float64 {
	dx := l.X - other.X
	dy := l.Y - other.Y
	dz := l.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
