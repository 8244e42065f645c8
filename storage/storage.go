// Package storage holds the backends that persist the live and archived
// siege collections. Each save writes one whole collection as a single
// document, so a reader never sees half of an update.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"

	"siege-coordinator/config"
	"siege-coordinator/models"
	"siege-coordinator/utils"

	"gopkg.in/yaml.v3"
)

// Document names. The file store uses them as file names, the database
// stores as row keys and the s3 store as object names.
const (
	liveDoc    = "participants"
	archiveDoc = "archive"
)

// Format is the text encoding of a stored document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Backend is an event store that may hold resources to release.
type Backend interface {
	LoadLive(ctx context.Context) (map[string]models.LiveEvent, error)
	SaveLive(ctx context.Context, events map[string]models.LiveEvent) error
	LoadArchive(ctx context.Context) (map[string]models.ArchiveRecord, error)
	SaveArchive(ctx context.Context, records map[string]models.ArchiveRecord) error
	Close() error
}

// Open builds the backend selected by cfg.Store.
func Open(ctx context.Context, cfg config.Config) (Backend, error) {
	log.Printf("[Store] Opening %s store", cfg.Store)
	switch cfg.Store {
	case config.StoreFile:
		return NewFileStore(cfg.DataDir, Format(cfg.StoreFormat))
	case config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreSQLite:
		return OpenSQLite(filepath.Join(cfg.DataDir, "siege.db"))
	case config.StorePostgres:
		return OpenPostgres(cfg.DatabaseURL)
	case config.StoreS3:
		client, err := utils.NewR2Client(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, cfg.R2.Bucket, cfg.R2.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func encode(format Format, v any) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(v)
	case FormatJSON:
		return json.MarshalIndent(v, "", "    ")
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func decode(format Format, data []byte, v any) error {
	switch format {
	case FormatYAML:
		return yaml.Unmarshal(data, v)
	case FormatJSON:
		return json.Unmarshal(data, v)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func decodeLive(format Format, data []byte) (map[string]models.LiveEvent, error) {
	out := map[string]models.LiveEvent{}
	if len(data) == 0 {
		return out, nil
	}
	if err := decode(format, data, &out); err != nil {
		return nil, fmt.Errorf("decode live events: %w", err)
	}
	if out == nil {
		out = map[string]models.LiveEvent{}
	}
	for id, ev := range out {
		if ev.Registrations == nil {
			ev.Registrations = map[string]models.Registration{}
			out[id] = ev
		}
	}
	return out, nil
}

func decodeArchive(format Format, data []byte) (map[string]models.ArchiveRecord, error) {
	out := map[string]models.ArchiveRecord{}
	if len(data) == 0 {
		return out, nil
	}
	if err := decode(format, data, &out); err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}
	if out == nil {
		out = map[string]models.ArchiveRecord{}
	}
	return out, nil
}
