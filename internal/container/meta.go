package container

import (
	"encoding/json"
	"fmt"
	"io"
)

// Meta - метаданные записи из metaData.json
type Meta struct {
	Duration          int32  `json:"duration"`
	Protocol          int32  `json:"protocol"`
	ServerName        string `json:"serverName,omitempty"`
	MCVersion         string `json:"mcversion,omitempty"`
	Date              int64  `json:"date,omitempty"`
	FileFormat        string `json:"fileFormat,omitempty"`
	FileFormatVersion int    `json:"fileFormatVersion,omitempty"`
	Generator         string `json:"generator,omitempty"`
}

func readMeta(r io.Reader) (Meta, error) {
	var m Meta
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return Meta{}, fmt.Errorf("не удалось разобрать %s: %w", MetaFile, err)
	}
	if m.Duration < 0 {
		return Meta{}, fmt.Errorf("некорректная длительность записи: %d", m.Duration)
	}
	return m, nil
}

func writeMeta(w io.Writer, meta Meta) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("не удалось записать %s: %w", MetaFile, err)
	}
	return nil
}
