package protocol

import (
	"bytes"
	"fmt"

	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/google/uuid"
)

// PlayerListAction - действие пакета PlayerListEntry
type PlayerListAction int32

const (
	PlayerListAdd PlayerListAction = iota
	PlayerListGamemode
	PlayerListLatency
	PlayerListDisplayName
	PlayerListRemove
)

// PlayerListItem - запись списка игроков. Для действий обновления заполнены
// только UUID и соответствующее поле.
type PlayerListItem struct {
	UUID        uuid.UUID
	Name        string
	Gamemode    int32
	Latency     int32
	DisplayName *string
}

// PlayerListEntry - пакет списка игроков с одним действием
type PlayerListEntry struct {
	Action PlayerListAction
	Items  []PlayerListItem
}

// Encode собирает PlayerListEntry
func (e PlayerListEntry) Encode(r *Registry) Packet {
	var buf bytes.Buffer
	writeFields(&buf, pk.VarInt(e.Action), pk.VarInt(len(e.Items)))
	for _, it := range e.Items {
		writeFields(&buf, pk.UUID(it.UUID))
		switch e.Action {
		case PlayerListAdd:
			writeFields(&buf, pk.String(it.Name), pk.VarInt(it.Gamemode), pk.VarInt(it.Latency))
			writeDisplayName(&buf, it.DisplayName)
		case PlayerListGamemode:
			writeFields(&buf, pk.VarInt(it.Gamemode))
		case PlayerListLatency:
			writeFields(&buf, pk.VarInt(it.Latency))
		case PlayerListDisplayName:
			writeDisplayName(&buf, it.DisplayName)
		}
	}
	return r.packet(KindPlayerListEntry, buf.Bytes())
}

func writeDisplayName(buf *bytes.Buffer, name *string) {
	if name == nil {
		writeFields(buf, pk.Boolean(false))
		return
	}
	writeFields(buf, pk.Boolean(true), pk.String(*name))
}

// ReadPlayerListEntry разбирает PlayerListEntry
func ReadPlayerListEntry(p Packet) (PlayerListEntry, error) {
	if err := expect(p, KindPlayerListEntry); err != nil {
		return PlayerListEntry{}, err
	}
	r := bytes.NewReader(p.Data)
	var action pk.VarInt
	if err := readFields(r, p.Kind, &action); err != nil {
		return PlayerListEntry{}, err
	}
	if action < pk.VarInt(PlayerListAdd) || action > pk.VarInt(PlayerListRemove) {
		return PlayerListEntry{}, fmt.Errorf("не удалось разобрать %s: действие %d", p.Kind, action)
	}
	n, err := readCount(r, p.Kind, maxListLen)
	if err != nil {
		return PlayerListEntry{}, err
	}

	e := PlayerListEntry{Action: PlayerListAction(action), Items: make([]PlayerListItem, 0, n)}
	for i := 0; i < n; i++ {
		var id pk.UUID
		if err := readFields(r, p.Kind, &id); err != nil {
			return PlayerListEntry{}, err
		}
		it := PlayerListItem{UUID: uuid.UUID(id)}
		var name pk.String
		var gamemode, latency pk.VarInt
		switch e.Action {
		case PlayerListAdd:
			if err := readFields(r, p.Kind, &name, &gamemode, &latency); err != nil {
				return PlayerListEntry{}, err
			}
			it.Name, it.Gamemode, it.Latency = string(name), int32(gamemode), int32(latency)
			if it.DisplayName, err = readDisplayName(r, p.Kind); err != nil {
				return PlayerListEntry{}, err
			}
		case PlayerListGamemode:
			if err := readFields(r, p.Kind, &gamemode); err != nil {
				return PlayerListEntry{}, err
			}
			it.Gamemode = int32(gamemode)
		case PlayerListLatency:
			if err := readFields(r, p.Kind, &latency); err != nil {
				return PlayerListEntry{}, err
			}
			it.Latency = int32(latency)
		case PlayerListDisplayName:
			if it.DisplayName, err = readDisplayName(r, p.Kind); err != nil {
				return PlayerListEntry{}, err
			}
		}
		e.Items = append(e.Items, it)
	}
	return e, nil
}

func readDisplayName(r *bytes.Reader, kind Kind) (*string, error) {
	var has pk.Boolean
	if err := readFields(r, kind, &has); err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}
	var name pk.String
	if err := readFields(r, kind, &name); err != nil {
		return nil, err
	}
	s := string(name)
	return &s, nil
}
