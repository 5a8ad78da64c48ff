// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"presencelog/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements store.Driver and store.PresenceStore using SQLite
// via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init initializes the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, "presencelog.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	if err := db.AutoMigrate(
		&store.Member{},
		&store.PresenceRecord{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertMember creates or refreshes a member row. A re-appearing member
// is flipped back to active.
func (d *Driver) UpsertMember(ctx context.Context, m *store.Member) error {
	if d.db == nil {
		return store.ErrClosed
	}

	now := time.Now().Unix()
	m.Active = true
	m.UpdatedAt = now

	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"display_name": m.DisplayName,
			"email":        m.Email,
			"active":       true,
			"updated_at":   now,
		}),
	}).Create(&store.Member{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		Email:       m.Email,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}).Error
}

// DeactivateMembersNotIn marks active members missing from ids as
// inactive. An empty id set deactivates everyone; callers decide
// whether an empty directory listing should reach this far.
func (d *Driver) DeactivateMembersNotIn(ctx context.Context, ids []string) (int64, error) {
	if d.db == nil {
		return 0, store.ErrClosed
	}

	q := d.db.WithContext(ctx).Model(&store.Member{}).Where("active = ?", true)
	if len(ids) > 0 {
		q = q.Where("id NOT IN ?", ids)
	}
	res := q.Updates(map[string]any{
		"active":     false,
		"updated_at": time.Now().Unix(),
	})
	return res.RowsAffected, res.Error
}

// ListMembers returns members ordered by display name.
func (d *Driver) ListMembers(ctx context.Context, activeOnly bool) ([]*store.Member, error) {
	if d.db == nil {
		return nil, store.ErrClosed
	}

	q := d.db.WithContext(ctx).Order("display_name ASC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}

	var members []*store.Member
	if err := q.Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

// Append inserts one history record. A (user_id, captured_at) conflict
// is silently dropped so repeated writes of the same observation are
// idempotent.
func (d *Driver) Append(ctx context.Context, rec *store.PresenceRecord) error {
	if d.db == nil {
		return store.ErrClosed
	}

	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		DoNothing: true,
	}).Create(rec).Error
}

// LastRecord returns the newest record for a user.
func (d *Driver) LastRecord(ctx context.Context, userID string) (*store.PresenceRecord, error) {
	if d.db == nil {
		return nil, store.ErrClosed
	}

	var rec store.PresenceRecord
	err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("captured_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// History returns a user's records within [from, to], ascending.
func (d *Driver) History(ctx context.Context, userID string, from, to time.Time) ([]*store.PresenceRecord, error) {
	if d.db == nil {
		return nil, store.ErrClosed
	}

	var recs []*store.PresenceRecord
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND captured_at >= ? AND captured_at <= ?",
			userID, from.Unix(), to.Unix()).
		Order("captured_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}

var (
	_ store.Driver        = (*Driver)(nil)
	_ store.PresenceStore = (*Driver)(nil)
)
