package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/yield-farm/internal/model"
)

//go:embed schema.sql
var schema string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Balances are stored as NUMERIC(20,0) so the full uint64 range survives.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const poolColumns = `id, admin, token_mint, vault,
	total_liquidity::TEXT, reward_coefficient::TEXT, fee_rate::TEXT,
	last_update, advance_baseline, top_staker,
	top_staker_amount::TEXT, total_rewards_distributed::TEXT,
	total_compounded::TEXT, total_fees_collected::TEXT,
	max_deposit_per_user::TEXT, total_max_liquidity::TEXT,
	is_paused, created_at`

func (s *PostgresStore) CreatePool(ctx context.Context, p *model.Pool, ev *model.Event) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO pools (id, admin, token_mint, vault,
			        total_liquidity, reward_coefficient, fee_rate,
			        last_update, advance_baseline, top_staker,
			        top_staker_amount, total_rewards_distributed,
			        total_compounded, total_fees_collected,
			        max_deposit_per_user, total_max_liquidity,
			        is_paused, created_at)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9, $10,
			         $11::NUMERIC, $12::NUMERIC, $13::NUMERIC, $14::NUMERIC,
			         $15::NUMERIC, $16::NUMERIC, $17, $18)
			 ON CONFLICT DO NOTHING`,
			p.ID.Hex(), p.Admin.Hex(), p.TokenMint.Hex(), p.Vault.Hex(),
			u64s(p.TotalLiquidity), u64s(p.RewardCoefficient), u64s(p.FeeRate),
			p.LastUpdate, p.AdvanceBaseline, p.TopStaker.Hex(),
			u64s(p.TopStakerAmount), u64s(p.TotalRewardsDistributed),
			u64s(p.TotalCompounded), u64s(p.TotalFeesCollected),
			u64s(p.MaxDepositPerUser), u64s(p.TotalMaxLiquidity),
			p.IsPaused, p.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert pool %s: %w", p.ID.Hex(), err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrPoolExists, p.ID.Hex())
		}
		if ev != nil {
			return insertEvent(ctx, tx, ev)
		}
		return nil
	})
}

func (s *PostgresStore) GetPool(ctx context.Context, id common.Address) (*model.Pool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id.Hex())
	p, err := scanPool(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pool %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", id.Hex(), err)
	}
	return p, nil
}

func (s *PostgresStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []model.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

func (s *PostgresStore) GetPosition(ctx context.Context, pool, owner common.Address) (*model.Position, error) {
	pos := &model.Position{Pool: pool, Owner: owner}
	var amount, multiplier string

	err := s.pool.QueryRow(ctx,
		`SELECT amount::TEXT, stake_time, unlock_time, multiplier::TEXT
		 FROM positions WHERE pool_id = $1 AND owner = $2`,
		pool.Hex(), owner.Hex()).
		Scan(&amount, &pos.StakeTime, &pos.UnlockTime, &multiplier)
	if errors.Is(err, pgx.ErrNoRows) {
		return pos, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s/%s: %w", pool.Hex(), owner.Hex(), err)
	}
	if err := parseU64s(
		field{amount, &pos.Amount},
		field{multiplier, &pos.Multiplier},
	); err != nil {
		return nil, err
	}
	return pos, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, pool common.Address) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT owner, amount::TEXT, stake_time, unlock_time, multiplier::TEXT
		 FROM positions WHERE pool_id = $1 ORDER BY amount DESC`, pool.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		pos := model.Position{Pool: pool}
		var owner, amount, multiplier string
		if err := rows.Scan(&owner, &amount, &pos.StakeTime, &pos.UnlockTime, &multiplier); err != nil {
			return nil, err
		}
		pos.Owner = common.HexToAddress(owner)
		if err := parseU64s(
			field{amount, &pos.Amount},
			field{multiplier, &pos.Multiplier},
		); err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) Commit(ctx context.Context, p *model.Pool, pos *model.Position, ev *model.Event) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE pools
			 SET total_liquidity = $2::NUMERIC, last_update = $3,
			     top_staker = $4, top_staker_amount = $5::NUMERIC,
			     total_rewards_distributed = $6::NUMERIC,
			     total_compounded = $7::NUMERIC, total_fees_collected = $8::NUMERIC,
			     is_paused = $9
			 WHERE id = $1`,
			p.ID.Hex(), u64s(p.TotalLiquidity), p.LastUpdate,
			p.TopStaker.Hex(), u64s(p.TopStakerAmount),
			u64s(p.TotalRewardsDistributed),
			u64s(p.TotalCompounded), u64s(p.TotalFeesCollected),
			p.IsPaused,
		)
		if err != nil {
			return fmt.Errorf("update pool %s: %w", p.ID.Hex(), err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("pool %s: %w", p.ID.Hex(), ErrNotFound)
		}

		if pos != nil {
			_, err := tx.Exec(ctx,
				`INSERT INTO positions (pool_id, owner, amount, stake_time, unlock_time, multiplier)
				 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6::NUMERIC)
				 ON CONFLICT (pool_id, owner) DO UPDATE
				 SET amount = EXCLUDED.amount, stake_time = EXCLUDED.stake_time,
				     unlock_time = EXCLUDED.unlock_time, multiplier = EXCLUDED.multiplier`,
				pos.Pool.Hex(), pos.Owner.Hex(), u64s(pos.Amount),
				pos.StakeTime, pos.UnlockTime, u64s(pos.Multiplier),
			)
			if err != nil {
				return fmt.Errorf("upsert position %s/%s: %w", pos.Pool.Hex(), pos.Owner.Hex(), err)
			}
		}

		if ev != nil {
			return insertEvent(ctx, tx, ev)
		}
		return nil
	})
}

func (s *PostgresStore) GetEvents(ctx context.Context, pool common.Address) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, pool_id, user_addr, mint,
		        coefficient::TEXT, amount::TEXT, reward::TEXT, fee::TEXT, timestamp
		 FROM events WHERE pool_id = $1 ORDER BY seq`, pool.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var poolID, user, mint, coefficient, amount, rewardS, fee string
		if err := rows.Scan(&e.ID, &e.Kind, &poolID, &user, &mint,
			&coefficient, &amount, &rewardS, &fee, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Pool = common.HexToAddress(poolID)
		e.User = common.HexToAddress(user)
		e.Mint = common.HexToAddress(mint)
		if err := parseU64s(
			field{coefficient, &e.Coefficient},
			field{amount, &e.Amount},
			field{rewardS, &e.Reward},
			field{fee, &e.Fee},
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func insertEvent(ctx context.Context, tx pgx.Tx, e *model.Event) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO events (id, kind, pool_id, user_addr, mint, coefficient, amount, reward, fee, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10)`,
		e.ID, e.Kind, e.Pool.Hex(), e.User.Hex(), e.Mint.Hex(),
		u64s(e.Coefficient), u64s(e.Amount), u64s(e.Reward), u64s(e.Fee), e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	return nil
}

// scanPool reads one pool row selected with poolColumns.
type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanPool(row pgxRow) (*model.Pool, error) {
	var p model.Pool
	var id, admin, mint, vault, top string
	var liquidity, coefficient, feeRate, topAmount, rewards, compounded, fees, maxUser, maxTotal string

	if err := row.Scan(&id, &admin, &mint, &vault,
		&liquidity, &coefficient, &feeRate,
		&p.LastUpdate, &p.AdvanceBaseline, &top,
		&topAmount, &rewards, &compounded, &fees,
		&maxUser, &maxTotal,
		&p.IsPaused, &p.CreatedAt); err != nil {
		return nil, err
	}

	p.ID = common.HexToAddress(id)
	p.Admin = common.HexToAddress(admin)
	p.TokenMint = common.HexToAddress(mint)
	p.Vault = common.HexToAddress(vault)
	p.TopStaker = common.HexToAddress(top)

	if err := parseU64s(
		field{liquidity, &p.TotalLiquidity},
		field{coefficient, &p.RewardCoefficient},
		field{feeRate, &p.FeeRate},
		field{topAmount, &p.TopStakerAmount},
		field{rewards, &p.TotalRewardsDistributed},
		field{compounded, &p.TotalCompounded},
		field{fees, &p.TotalFeesCollected},
		field{maxUser, &p.MaxDepositPerUser},
		field{maxTotal, &p.TotalMaxLiquidity},
	); err != nil {
		return nil, err
	}
	return &p, nil
}

type field struct {
	text string
	dst  *uint64
}

func parseU64s(fields ...field) error {
	for _, f := range fields {
		v, err := strconv.ParseUint(f.text, 10, 64)
		if err != nil {
			return fmt.Errorf("parse numeric %q: %w", f.text, err)
		}
		*f.dst = v
	}
	return nil
}

func u64s(v uint64) string { return strconv.FormatUint(v, 10) }
