package container

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// DirRecording - распакованная запись: каталог с metaData.json и recording.tmcpr
type DirRecording struct {
	dir string
}

// NewDirRecording создаёт запись над каталогом
func NewDirRecording(dir string) *DirRecording {
	return &DirRecording{dir: dir}
}

func (d *DirRecording) Meta(ctx context.Context) (Meta, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}
	f, err := os.Open(filepath.Join(d.dir, MetaFile))
	if err != nil {
		return Meta{}, fmt.Errorf("не удалось открыть метаданные записи: %w", err)
	}
	defer f.Close()
	return readMeta(f)
}

func (d *DirRecording) OpenRecording(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(d.dir, RecordingFile))
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть поток записи: %w", err)
	}
	return f, nil
}

func (d *DirRecording) Close() error {
	return nil
}

// Archive - запись в архиве .mcpr (zip)
type Archive struct {
	path string
	zr   *zip.ReadCloser
}

// OpenArchive открывает архив записи
func OpenArchive(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть архив %s: %w", path, err)
	}
	return &Archive{path: path, zr: zr}, nil
}

func (a *Archive) open(name string) (io.ReadCloser, error) {
	for _, f := range a.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("не удалось открыть %s в архиве %s: %w", name, a.path, err)
		}
		return rc, nil
	}
	return nil, fmt.Errorf("в архиве %s нет %s: %w", a.path, name, os.ErrNotExist)
}

func (a *Archive) Meta(ctx context.Context) (Meta, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}
	f, err := a.open(MetaFile)
	if err != nil {
		return Meta{}, err
	}
	defer f.Close()
	return readMeta(f)
}

func (a *Archive) OpenRecording(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.open(RecordingFile)
}

func (a *Archive) Close() error {
	return a.zr.Close()
}

// WriteArchive упаковывает метаданные и поток записи в архив .mcpr
func WriteArchive(w io.Writer, meta Meta, recording io.Reader) error {
	zw := zip.NewWriter(w)
	mf, err := zw.Create(MetaFile)
	if err != nil {
		return fmt.Errorf("не удалось записать %s: %w", MetaFile, err)
	}
	if err := writeMeta(mf, meta); err != nil {
		return err
	}
	rf, err := zw.Create(RecordingFile)
	if err != nil {
		return fmt.Errorf("не удалось записать %s: %w", RecordingFile, err)
	}
	if _, err := io.Copy(rf, recording); err != nil {
		return fmt.Errorf("не удалось записать %s: %w", RecordingFile, err)
	}
	return zw.Close()
}

// WriteDir раскладывает метаданные и поток записи в каталог
func WriteDir(dir string, meta Meta, recording io.Reader) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("не удалось создать каталог %s: %w", dir, err)
	}
	mf, err := os.Create(filepath.Join(dir, MetaFile))
	if err != nil {
		return err
	}
	if err := writeMeta(mf, meta); err != nil {
		mf.Close()
		return err
	}
	if err := mf.Close(); err != nil {
		return err
	}
	rf, err := os.Create(filepath.Join(dir, RecordingFile))
	if err != nil {
		return err
	}
	if _, err := io.Copy(rf, recording); err != nil {
		rf.Close()
		return fmt.Errorf("не удалось записать %s: %w", RecordingFile, err)
	}
	return rf.Close()
}
