package protocol

import "fmt"

// Version - номер сетевого протокола записи
type Version int32

const (
	V1_9    Version = 107
	V1_12_2 Version = 340
	V1_13   Version = 393
	V1_14   Version = 477
	V1_16   Version = 735
	V1_17   Version = 755
	V1_17_1 Version = 756
	V1_18   Version = 757
	V1_19_3 Version = 761
	V1_20   Version = 763

	MinVersion = V1_9
	MaxVersion = V1_20
)

// AtLeast сообщает, что версия не старше other
func (v Version) AtLeast(other Version) bool {
	return v >= other
}

// Supported проверяет, входит ли версия в поддерживаемый диапазон
func (v Version) Supported() bool {
	return v >= MinVersion && v <= MaxVersion
}

// HasViewState - сервер сообщает центр и дальность прорисовки
func (v Version) HasViewState() bool {
	return v.AtLeast(V1_14)
}

// HasSimulationDistance - сервер сообщает дальность симуляции
func (v Version) HasSimulationDistance() bool {
	return v.AtLeast(V1_18)
}

// LightInChunkData - освещение приходит вместе с данными чанка
func (v Version) LightInChunkData() bool {
	return v.AtLeast(V1_18)
}

// HasLightUpdates - освещение приходит отдельным пакетом
func (v Version) HasLightUpdates() bool {
	return v.AtLeast(V1_14)
}

// HasFeatures - сервер присылает набор включённых feature flags
func (v Version) HasFeatures() bool {
	return v.AtLeast(V1_19_3)
}

func (v Version) String() string {
	return fmt.Sprintf("protocol(%d)", int32(v))
}
