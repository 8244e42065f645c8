package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"siege-coordinator/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Document is one persisted collection, stored as a JSON body.
type Document struct {
	Name      string    `gorm:"primaryKey"`
	Body      string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Document) TableName() string { return "siege_documents" }

// GormStore keeps each collection as one row in Postgres.
type GormStore struct {
	DB *gorm.DB
}

func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore migrates the document table on db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &GormStore{DB: db}, nil
}

func (s *GormStore) load(ctx context.Context, name string) ([]byte, error) {
	var doc Document
	if err := s.DB.WithContext(ctx).First(&doc, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return []byte(doc.Body), nil
}

func (s *GormStore) save(ctx context.Context, name string, v any) error {
	data, err := encode(FormatJSON, v)
	if err != nil {
		return err
	}
	doc := Document{Name: name, Body: string(data), UpdatedAt: time.Now().UTC()}
	err = s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&doc).Error
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

func (s *GormStore) LoadLive(ctx context.Context) (map[string]models.LiveEvent, error) {
	data, err := s.load(ctx, liveDoc)
	if err != nil {
		return nil, err
	}
	return decodeLive(FormatJSON, data)
}

func (s *GormStore) SaveLive(ctx context.Context, events map[string]models.LiveEvent) error {
	return s.save(ctx, liveDoc, events)
}

func (s *GormStore) LoadArchive(ctx context.Context) (map[string]models.ArchiveRecord, error) {
	data, err := s.load(ctx, archiveDoc)
	if err != nil {
		return nil, err
	}
	return decodeArchive(FormatJSON, data)
}

func (s *GormStore) SaveArchive(ctx context.Context, records map[string]models.ArchiveRecord) error {
	return s.save(ctx, archiveDoc, records)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
