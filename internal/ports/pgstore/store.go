package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mixmaster-audio/pipeline/internal/platform/logger"
	"github.com/mixmaster-audio/pipeline/internal/ports"
)

// Store is a gorm-backed ports.JobStore.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

// OpenPostgres opens a postgres-backed Store and migrates its tables.
func OpenPostgres(dsn string, log *logger.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("pgstore: open postgres: %w", err)
	}
	return newStore(db, log)
}

// OpenSQLite opens a sqlite-backed Store (used by online runs that set a
// sqlite path and no postgres DSN) and migrates its tables.
func OpenSQLite(path string, log *logger.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("pgstore: open sqlite: %w", err)
	}
	return newStore(db, log)
}

func newStore(db *gorm.DB, log *logger.Logger) (*Store, error) {
	if err := db.AutoMigrate(&JobStatusRow{}, &JobArtifactRow{}, &JobInputRow{}); err != nil {
		return nil, fmt.Errorf("pgstore: automigrate: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) SetStatus(ctx context.Context, jobID string, status ports.Status) error {
	metrics, err := json.Marshal(status.Metrics)
	if err != nil {
		return fmt.Errorf("pgstore: marshal metrics: %w", err)
	}
	row := JobStatusRow{
		JobID:       jobID,
		Status:      status.Status,
		StageIndex:  status.StageIndex,
		TotalStages: status.TotalStages,
		StageKey:    status.StageKey,
		Message:     status.Message,
		Progress:    status.Progress,
		Metrics:     metrics,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *Store) GetStatus(ctx context.Context, jobID string) (ports.Status, bool, error) {
	var row JobStatusRow
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ports.Status{}, false, nil
	}
	if err != nil {
		return ports.Status{}, false, fmt.Errorf("pgstore: get status: %w", err)
	}
	var metrics map[string]any
	if len(row.Metrics) > 0 {
		if err := json.Unmarshal(row.Metrics, &metrics); err != nil {
			return ports.Status{}, false, fmt.Errorf("pgstore: unmarshal metrics: %w", err)
		}
	}
	return ports.Status{
		JobID:       row.JobID,
		Status:      row.Status,
		StageIndex:  row.StageIndex,
		TotalStages: row.TotalStages,
		StageKey:    row.StageKey,
		Message:     row.Message,
		Progress:    row.Progress,
		Metrics:     metrics,
	}, true, nil
}

func (s *Store) PutArtifact(ctx context.Context, jobID, name string, data []byte) error {
	row := JobArtifactRow{JobID: jobID, Name: name, Data: data}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}, {Name: "name"}},
		DoNothing: true,
	}).Create(&row).Error
}

func (s *Store) GetArtifact(ctx context.Context, jobID, name string) ([]byte, bool, error) {
	var row JobArtifactRow
	err := s.db.WithContext(ctx).Where("job_id = ? AND name = ?", jobID, name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: get artifact: %w", err)
	}
	return row.Data, true, nil
}

func (s *Store) PutInput(ctx context.Context, jobID, name string, data []byte) error {
	row := JobInputRow{JobID: jobID, Name: name, Data: data}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}, {Name: "name"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *Store) GetInputs(ctx context.Context, jobID string) (map[string][]byte, error) {
	var rows []JobInputRow
	if err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("pgstore: get inputs: %w", err)
	}
	out := make(map[string][]byte, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Data
	}
	return out, nil
}
