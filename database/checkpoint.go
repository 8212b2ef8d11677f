package database

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrCheckpointRegression = errors.New("checkpoint regression")

// CheckpointStore keeps the last fully processed block height as a single
// key-value row. The stored value never decreases except through Reset.
type CheckpointStore struct {
	db  *gorm.DB
	key string
}

func NewCheckpointStore(db *gorm.DB, key string) *CheckpointStore {
	return &CheckpointStore{db: db, key: key}
}

func (c *CheckpointStore) Key() string {
	return c.key
}

// Load returns found == false when no pass has completed yet.
func (c *CheckpointStore) Load(ctx context.Context) (uint64, bool, error) {
	return loadCheckpoint(c.db.WithContext(ctx), c.key)
}

func (c *CheckpointStore) Commit(ctx context.Context, value uint64) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, found, err := loadCheckpoint(tx, c.key)
		if err != nil {
			return err
		}
		if found && value < current {
			return errors.Wrapf(ErrCheckpointRegression, "%s: %d < %d", c.key, value, current)
		}

		return upsertCheckpoint(tx, c.key, value)
	})
	if err != nil {
		return errors.Wrap(err, "CheckpointStore.Commit")
	}

	return nil
}

// Reset is the operator override; it may move the checkpoint backwards.
func (c *CheckpointStore) Reset(ctx context.Context, value uint64) error {
	err := upsertCheckpoint(c.db.WithContext(ctx), c.key, value)
	if err != nil {
		return errors.Wrap(err, "CheckpointStore.Reset")
	}

	return nil
}

func loadCheckpoint(db *gorm.DB, key string) (uint64, bool, error) {
	var checkpoint Checkpoint
	err := db.Where(&Checkpoint{Key: key}).First(&checkpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "loadCheckpoint")
	}

	value, err := strconv.ParseUint(checkpoint.Value, 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "checkpoint %s holds %q", key, checkpoint.Value)
	}

	return value, true, nil
}

func upsertCheckpoint(db *gorm.DB, key string, value uint64) error {
	checkpoint := &Checkpoint{
		Key:     key,
		Value:   strconv.FormatUint(value, 10),
		Updated: time.Now(),
	}

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated"}),
	}).Create(checkpoint).Error
}
