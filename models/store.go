package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/forecast_backend/utils"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ErrDuplicateEntry means a concurrent upsert won the race for the composite
// key. Callers refetch and apply as an update.
var ErrDuplicateEntry = errors.New("entry already exists for key")

const mysqlDuplicateEntry = 1062

// Store is the GORM-backed persistence used by the workflow pipeline.
// The pipeline only sees the narrow method set below, so tests swap in an
// in-memory implementation.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindEntry returns nil, nil when no entry exists for the composite key.
func (s *Store) FindEntry(ctx context.Context, projectId int, year int, month int, typ EntryType) (*Entry, error) {
	var entry Entry
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND year = ? AND month = ? AND type = ?", projectId, year, month, typ).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Store) CreateEntry(ctx context.Context, entry *Entry) error {
	err := s.db.WithContext(ctx).Create(entry).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return ErrDuplicateEntry
		}
		return err
	}
	return nil
}

func (s *Store) UpdateEntry(ctx context.Context, entry *Entry) error {
	// Full-row save keyed by primary key; the caller already merged fields.
	return s.db.WithContext(ctx).Save(entry).Error
}

// LatestEntryCreatedAt returns the newest CreatedAt among the manager's
// entries for (project, type), or nil when none exist. Feeds the weekly
// throttle.
func (s *Store) LatestEntryCreatedAt(ctx context.Context, projectId int, managerId int, typ EntryType) (*time.Time, error) {
	var entry Entry
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND manager_id = ? AND type = ?", projectId, managerId, typ).
		Order("created_at DESC").First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	t := entry.CreatedAt
	return &t, nil
}

func (s *Store) AppendAuditLog(ctx context.Context, log *AuditLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

// FindProjectByAccountAndName returns nil, nil when no project matches.
// Import rows resolve projects by this exact pair.
func (s *Store) FindProjectByAccountAndName(ctx context.Context, account string, name string) (*Project, error) {
	var project Project
	err := s.db.WithContext(ctx).
		Where("account = ? AND name = ?", account, name).
		First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &project, nil
}

func (s *Store) CreateProject(ctx context.Context, project *Project) error {
	if err := s.db.WithContext(ctx).Create(project).Error; err != nil {
		return err
	}
	// same invalidation as models.CreateProject; import-created projects
	// must show up in the cached project list too
	return utils.ClearModelCache[Project](project.ID)
}
