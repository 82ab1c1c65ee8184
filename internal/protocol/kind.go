package protocol

// Kind определяет тип пакета независимо от версии протокола
type Kind uint8

const (
	KindUnknown Kind = iota
	KindKeepAlive
	KindChat
	KindJoinGame
	KindRespawn
	KindPlayerPosition
	KindSpawnPlayer
	KindSpawnMob
	KindSpawnObject
	KindSpawnPainting
	KindDestroyEntities
	KindDestroyEntity
	KindEntityMovement
	KindEntityPosition
	KindEntityRotation
	KindEntityPositionRotation
	KindEntityTeleport
	KindEntityHeadLook
	KindChunkData
	KindUnloadChunk
	KindUpdateLight
	KindBlockChange
	KindMultiBlockChange
	KindPlayerListEntry
	KindUpdateViewPosition
	KindUpdateViewDistance
	KindUpdateSimulationDistance
	KindUpdateTime
	KindNotifyClient
	KindTags
	KindFeatures
)

var kindNames = map[Kind]string{
	KindUnknown:                  "Unknown",
	KindKeepAlive:                "KeepAlive",
	KindChat:                     "Chat",
	KindJoinGame:                 "JoinGame",
	KindRespawn:                  "Respawn",
	KindPlayerPosition:           "PlayerPosition",
	KindSpawnPlayer:              "SpawnPlayer",
	KindSpawnMob:                 "SpawnMob",
	KindSpawnObject:              "SpawnObject",
	KindSpawnPainting:            "SpawnPainting",
	KindDestroyEntities:          "DestroyEntities",
	KindDestroyEntity:            "DestroyEntity",
	KindEntityMovement:           "EntityMovement",
	KindEntityPosition:           "EntityPosition",
	KindEntityRotation:           "EntityRotation",
	KindEntityPositionRotation:   "EntityPositionRotation",
	KindEntityTeleport:           "EntityTeleport",
	KindEntityHeadLook:           "EntityHeadLook",
	KindChunkData:                "ChunkData",
	KindUnloadChunk:              "UnloadChunk",
	KindUpdateLight:              "UpdateLight",
	KindBlockChange:              "BlockChange",
	KindMultiBlockChange:         "MultiBlockChange",
	KindPlayerListEntry:          "PlayerListEntry",
	KindUpdateViewPosition:       "UpdateViewPosition",
	KindUpdateViewDistance:       "UpdateViewDistance",
	KindUpdateSimulationDistance: "UpdateSimulationDistance",
	KindUpdateTime:               "UpdateTime",
	KindNotifyClient:             "NotifyClient",
	KindTags:                     "Tags",
	KindFeatures:                 "Features",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// IsEntitySpawn сообщает, создаёт ли пакет сущность
func (k Kind) IsEntitySpawn() bool {
	switch k {
	case KindSpawnPlayer, KindSpawnMob, KindSpawnObject, KindSpawnPainting:
		return true
	}
	return false
}

// Packet - сырой пакет: тип, id на проводе и полезная нагрузка без id.
// Data принадлежит тому, кто держит пакет; чтобы сохранить пакет дольше
// одного шага обработки, сделайте Clone.
type Packet struct {
	Kind Kind
	ID   int32
	Data []byte
}

// Clone возвращает пакет с собственной копией данных
func (p Packet) Clone() Packet {
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	return Packet{Kind: p.Kind, ID: p.ID, Data: data}
}

// TimedPacket - пакет записи с отметкой времени в миллисекундах
type TimedPacket struct {
	Time   int32
	Packet Packet
}

// Source отдаёт пакеты записи по порядку; в конце возвращает io.EOF
type Source interface {
	Next() (TimedPacket, error)
}
