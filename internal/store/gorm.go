package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/pawel/toolgate/internal/config"
	"github.com/pawel/toolgate/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Gorm is a Store backed by a relational database (SQLite or PostgreSQL).
// Counter updates run inside a transaction holding a row lock, so they are
// atomic at the storage layer like the DynamoDB update expressions.
type Gorm struct {
	db *gorm.DB
}

// NewGorm initializes the database connection based on configuration and
// runs migrations.
// Parameters:
//   - cfg: store configuration including driver and connection settings.
// Returns:
//   - *Gorm: initialized store bound to the database.
//   - error: non-nil if connection or migration fails.
func NewGorm(cfg *config.StoreConfig) (*Gorm, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		// Map driver-specific duplicate-key errors to gorm.ErrDuplicatedKey
		// so the conditional-create contract holds on every dialect.
		TranslateError: true,
	}

	var db *gorm.DB
	var err error

	switch cfg.Driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormConfig)
	default:
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", mkErr)
			}
		}
		db, err = gorm.Open(sqlite.Open(cfg.Path), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&domain.JobRecord{}, &domain.Link{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Gorm{db: db}, nil
}

func (g *Gorm) CreateJob(ctx context.Context, rec *domain.JobRecord) error {
	err := g.db.WithContext(ctx).Create(rec).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return err
}

func (g *Gorm) GetJob(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	var rec domain.JobRecord
	err := g.db.WithContext(ctx).First(&rec, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (g *Gorm) MarkItemDone(ctx context.Context, jobID, itemID string) (*domain.JobRecord, error) {
	return g.countItem(ctx, jobID, itemID, func(rec *domain.JobRecord) {
		rec.Processed++
	})
}

func (g *Gorm) MarkItemFailed(ctx context.Context, jobID string, itemErr domain.ItemError) (*domain.JobRecord, error) {
	return g.countItem(ctx, jobID, itemErr.ItemID, func(rec *domain.JobRecord) {
		rec.Failed++
		rec.Errors = append(rec.Errors, itemErr)
	})
}

// countItem applies one dedup-guarded counter mutation under a row lock.
func (g *Gorm) countItem(ctx context.Context, jobID, itemID string, mutate func(*domain.JobRecord)) (*domain.JobRecord, error) {
	var out *domain.JobRecord
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec domain.JobRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&rec, "job_id = ?", jobID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if slices.Contains(rec.Seen, itemID) {
			return ErrConditionFailed
		}
		rec.Seen = append(rec.Seen, itemID)
		mutate(&rec)
		rec.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&rec).Error; err != nil {
			return err
		}
		out = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gorm) SetTerminal(ctx context.Context, jobID string, status domain.JobStatus) error {
	// Single conditional UPDATE; zero affected rows means the record is
	// already terminal (benign) or missing.
	res := g.db.WithContext(ctx).Model(&domain.JobRecord{}).
		Where("job_id = ? AND status = ?", jobID, domain.StatusInProgress).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := g.db.WithContext(ctx).Model(&domain.JobRecord{}).
			Where("job_id = ?", jobID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (g *Gorm) StaleJobIDs(ctx context.Context, olderThan time.Time) ([]string, error) {
	var ids []string
	err := g.db.WithContext(ctx).Model(&domain.JobRecord{}).
		Where("status = ? AND updated_at < ?", domain.StatusInProgress, olderThan).
		Pluck("job_id", &ids).Error
	return ids, err
}

func (g *Gorm) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res := g.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&domain.JobRecord{})
	return int(res.RowsAffected), res.Error
}

func (g *Gorm) CreateLink(ctx context.Context, link *domain.Link) error {
	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(link)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (g *Gorm) GetLink(ctx context.Context, code string) (*domain.Link, error) {
	var link domain.Link
	err := g.db.WithContext(ctx).First(&link, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (g *Gorm) IncrementClicks(ctx context.Context, code string) error {
	res := g.db.WithContext(ctx).Model(&domain.Link{}).
		Where("code = ?", code).
		UpdateColumn("clicks", gorm.Expr("clicks + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*Gorm)(nil)
