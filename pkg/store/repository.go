package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/atr-swing-bot/pkg/backtest"
	"github.com/atr-swing-bot/pkg/optimize"
)

// Repository persists runs and their ledgers.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to Postgres at dsn and migrates the schema.
func Open(dsn string, log *zap.Logger) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("database url is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&Run{}, &TradeRow{}, &BatchResultRow{}, &FoldRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return NewRepository(db, log), nil
}

// NewRepository wraps an open connection
func NewRepository(db *gorm.DB, log *zap.Logger) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository{db: db, logger: log}
}

// SaveBacktest stores a run header and its trade ledger in one transaction.
func (r *Repository) SaveBacktest(run *Run, trades []backtest.Trade) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	rows := tradeRows(run.ID, trades)
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			return tx.CreateInBatches(rows, 500).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	r.logger.Info("run saved", zap.String("run_id", run.ID.String()), zap.Int("trades", len(rows)))
	return nil
}

// SaveBatch stores a sweep header and its per-instrument rows.
func (r *Repository) SaveBatch(run *Run, results []optimize.BatchRow) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	rows := batchRows(run.ID, results)
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			return tx.CreateInBatches(rows, 500).Error
		}
		return nil
	})
}

// SaveFolds stores a walk-forward header and its folds.
func (r *Repository) SaveFolds(run *Run, folds []optimize.Fold) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	rows := foldRows(run.ID, folds)
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			return tx.CreateInBatches(rows, 500).Error
		}
		return nil
	})
}

// FindRun retrieves a run by ID; a missing run returns nil, nil.
func (r *Repository) FindRun(id uuid.UUID) (*Run, error) {
	var run Run
	err := r.db.First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// FindTrades retrieves a run's trade ledger in exit order.
func (r *Repository) FindTrades(runID uuid.UUID) ([]backtest.Trade, error) {
	var rows []TradeRow
	err := r.db.Where("run_id = ?", runID).Order("exit_date ASC, symbol ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	trades := make([]backtest.Trade, len(rows))
	for i, row := range rows {
		trades[i] = row.Trade()
	}
	return trades, nil
}

// RecentRuns lists the latest runs of a kind, newest first.
func (r *Repository) RecentRuns(kind string, limit int) ([]Run, error) {
	var runs []Run
	q := r.db.Order("created_at DESC").Limit(limit)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	err := q.Find(&runs).Error
	return runs, err
}
