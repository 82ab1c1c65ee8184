package protocol

import (
	"errors"
	"fmt"
)

// ErrUnsupportedVersion возвращается для версий вне поддерживаемого диапазона
var ErrUnsupportedVersion = errors.New("неподдерживаемая версия протокола")

type kindRange struct {
	kind  Kind
	since Version
	until Version // 0 - без ограничения
}

const (
	v1_16_5 Version = 754
	v1_18_2 Version = 758
)

// Порядок строк задаёт id пакетов: id - позиция среди типов, доступных в версии.
var kindTable = []kindRange{
	{kind: KindKeepAlive},
	{kind: KindChat},
	{kind: KindJoinGame},
	{kind: KindRespawn},
	{kind: KindPlayerPosition},
	{kind: KindSpawnPlayer},
	{kind: KindSpawnMob, until: v1_18_2},
	{kind: KindSpawnObject},
	{kind: KindSpawnPainting, until: v1_18_2},
	{kind: KindDestroyEntities, until: v1_16_5},
	{kind: KindDestroyEntity, since: V1_17, until: V1_17},
	{kind: KindDestroyEntities, since: V1_17_1},
	{kind: KindEntityMovement, until: v1_16_5},
	{kind: KindEntityPosition},
	{kind: KindEntityRotation},
	{kind: KindEntityPositionRotation},
	{kind: KindEntityTeleport},
	{kind: KindEntityHeadLook},
	{kind: KindChunkData},
	{kind: KindUnloadChunk},
	{kind: KindUpdateLight, since: V1_14},
	{kind: KindBlockChange},
	{kind: KindMultiBlockChange},
	{kind: KindPlayerListEntry},
	{kind: KindUpdateViewPosition, since: V1_14},
	{kind: KindUpdateViewDistance, since: V1_14},
	{kind: KindUpdateSimulationDistance, since: V1_18},
	{kind: KindUpdateTime},
	{kind: KindNotifyClient},
	{kind: KindTags, since: V1_13},
	{kind: KindFeatures, since: V1_19_3},
}

// Registry сопоставляет id пакетов и их типы для одной версии протокола.
// Создаётся один раз через NewRegistry и передаётся по ссылке.
type Registry struct {
	version Version
	ids     map[Kind]int32
	kinds   map[int32]Kind
}

// NewRegistry строит таблицу пакетов для версии
func NewRegistry(version Version) (*Registry, error) {
	if !version.Supported() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, int32(version))
	}

	r := &Registry{
		version: version,
		ids:     make(map[Kind]int32),
		kinds:   make(map[int32]Kind),
	}
	var next int32
	for _, row := range kindTable {
		if version < row.since || (row.until != 0 && version > row.until) {
			continue
		}
		r.ids[row.kind] = next
		r.kinds[next] = row.kind
		next++
	}
	return r, nil
}

// Version возвращает версию протокола таблицы
func (r *Registry) Version() Version {
	return r.version
}

// KindOf возвращает тип пакета по id; неизвестные id дают KindUnknown
func (r *Registry) KindOf(id int32) Kind {
	if k, ok := r.kinds[id]; ok {
		return k
	}
	return KindUnknown
}

// ID возвращает id пакета данного типа
func (r *Registry) ID(kind Kind) (int32, bool) {
	id, ok := r.ids[kind]
	return id, ok
}

// Has сообщает, существует ли тип пакета в этой версии
func (r *Registry) Has(kind Kind) bool {
	_, ok := r.ids[kind]
	return ok
}

// Classify создаёт пакет из id и данных с провода
func (r *Registry) Classify(id int32, data []byte) Packet {
	return Packet{Kind: r.KindOf(id), ID: id, Data: data}
}

// packet собирает пакет; для типов, которых нет в версии, id равен -1
func (r *Registry) packet(kind Kind, data []byte) Packet {
	id, ok := r.ids[kind]
	if !ok {
		id = -1
	}
	return Packet{Kind: kind, ID: id, Data: data}
}

// Raw собирает пакет произвольного типа из готовой полезной нагрузки
func (r *Registry) Raw(kind Kind, data []byte) Packet {
	return r.packet(kind, data)
}
