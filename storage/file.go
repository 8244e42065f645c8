package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"siege-coordinator/models"
	"siege-coordinator/utils"
)

// FileStore keeps each collection in a human-readable file under dir
// (participants.json and archive.json by default).
type FileStore struct {
	dir    string
	format Format
}

func NewFileStore(dir string, format Format) (*FileStore, error) {
	if format != FormatJSON && format != FormatYAML {
		return nil, fmt.Errorf("unknown format %q", format)
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, format: format}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+"."+string(s.format))
}

func (s *FileStore) read(name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(data), nil
}

func (s *FileStore) write(name string, v any) error {
	data, err := encode(s.format, v)
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(s.path(name), data, 0o644)
}

func (s *FileStore) LoadLive(context.Context) (map[string]models.LiveEvent, error) {
	data, err := s.read(liveDoc)
	if err != nil {
		return nil, err
	}
	return decodeLive(s.format, data)
}

func (s *FileStore) SaveLive(_ context.Context, events map[string]models.LiveEvent) error {
	return s.write(liveDoc, events)
}

func (s *FileStore) LoadArchive(context.Context) (map[string]models.ArchiveRecord, error) {
	data, err := s.read(archiveDoc)
	if err != nil {
		return nil, err
	}
	return decodeArchive(s.format, data)
}

func (s *FileStore) SaveArchive(_ context.Context, records map[string]models.ArchiveRecord) error {
	return s.write(archiveDoc, records)
}

func (s *FileStore) Close() error { return nil }
