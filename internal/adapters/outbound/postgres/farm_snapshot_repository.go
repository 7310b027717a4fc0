package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/farmsync/internal/ports/outbound"
)

var _ outbound.SnapshotSink = (*FarmSnapshotRepository)(nil)

// FarmSnapshot is one persisted row of farm_snapshots.
type FarmSnapshot struct {
	ChainID        int64
	Account        common.Address
	Farm           common.Address
	Generation     uint64
	DepositedCount int
	ErrorCount     int
	Payload        json.RawMessage
	UpdatedAt      time.Time
}

// FarmSnapshotRepository persists published farms into farm_snapshots.
type FarmSnapshotRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewFarmSnapshotRepository creates a new PostgreSQL farm snapshot repository.
func NewFarmSnapshotRepository(pool *pgxpool.Pool, logger *slog.Logger) (*FarmSnapshotRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FarmSnapshotRepository{
		pool:   pool,
		logger: logger.With("component", "farm-snapshot-repository"),
	}, nil
}

// Name returns the sink name.
func (r *FarmSnapshotRepository) Name() string {
	return "postgres"
}

// Write upserts the snapshot or deletes it when the farm was removed. A row
// is never overwritten by an older generation.
func (r *FarmSnapshotRepository) Write(ctx context.Context, update outbound.FarmUpdate) error {
	k := update.Key
	if update.Removed {
		if _, err := r.pool.Exec(ctx,
			`DELETE FROM farm_snapshots WHERE chain_id = $1 AND account = $2 AND farm = $3`,
			k.ChainID, k.Account.Bytes(), k.Farm.Bytes()); err != nil {
			return fmt.Errorf("failed to delete farm snapshot: %w", err)
		}
		return nil
	}

	payload, err := json.Marshal(update.Info)
	if err != nil {
		return fmt.Errorf("failed to marshal farm snapshot: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO farm_snapshots (chain_id, account, farm, generation, deposited_count, error_count, payload, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (chain_id, account, farm) DO UPDATE SET
		     generation = EXCLUDED.generation,
		     deposited_count = EXCLUDED.deposited_count,
		     error_count = EXCLUDED.error_count,
		     payload = EXCLUDED.payload,
		     updated_at = EXCLUDED.updated_at
		 WHERE farm_snapshots.generation <= EXCLUDED.generation`,
		k.ChainID, k.Account.Bytes(), k.Farm.Bytes(),
		int64(update.Info.Generation),
		len(update.Info.DepositedPositions),
		len(update.Info.ErrorPositions),
		payload,
		update.Info.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save farm snapshot: %w", err)
	}
	return nil
}

// AccountSnapshots returns the stored snapshots of an account ordered by farm.
func (r *FarmSnapshotRepository) AccountSnapshots(ctx context.Context, chainID int64, account common.Address) ([]FarmSnapshot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT chain_id, account, farm, generation, deposited_count, error_count, payload, updated_at
		 FROM farm_snapshots
		 WHERE chain_id = $1 AND account = $2
		 ORDER BY farm`,
		chainID, account.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to query farm snapshots: %w", err)
	}

	snapshots, err := pgx.CollectRows(rows, scanSnapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to scan farm snapshots: %w", err)
	}
	return snapshots, nil
}

// FarmsWithErrors returns snapshots of a chain that carry error positions.
func (r *FarmSnapshotRepository) FarmsWithErrors(ctx context.Context, chainID int64) ([]FarmSnapshot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT chain_id, account, farm, generation, deposited_count, error_count, payload, updated_at
		 FROM farm_snapshots
		 WHERE chain_id = $1 AND error_count > 0
		 ORDER BY account, farm`,
		chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to query farm snapshots: %w", err)
	}

	snapshots, err := pgx.CollectRows(rows, scanSnapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to scan farm snapshots: %w", err)
	}
	return snapshots, nil
}

func scanSnapshot(row pgx.CollectableRow) (FarmSnapshot, error) {
	var (
		s             FarmSnapshot
		account, farm []byte
		generation    int64
		payload       []byte
	)
	if err := row.Scan(&s.ChainID, &account, &farm, &generation, &s.DepositedCount, &s.ErrorCount, &payload, &s.UpdatedAt); err != nil {
		return FarmSnapshot{}, err
	}
	s.Account = common.BytesToAddress(account)
	s.Farm = common.BytesToAddress(farm)
	s.Generation = uint64(generation)
	s.Payload = payload
	return s, nil
}
