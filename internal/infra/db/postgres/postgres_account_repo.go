package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/jmobrien1/mdraft/internal/domain"
	"github.com/jmobrien1/mdraft/internal/domain/model"
	"github.com/jmobrien1/mdraft/internal/domain/ports/repository"
)

var _ repository.AccountRepository = (*AccountRepo)(nil)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func (r *AccountRepo) Save(ctx context.Context, tx repository.Tx, account *model.Account) error {
	account.UpdatedAt = time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = account.UpdatedAt
	}
	if account.Tier == "" {
		account.Tier = model.AccountTierFree
	}

	const q = `
INSERT INTO accounts (id, email, tier, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET
  email = EXCLUDED.email,
  tier = EXCLUDED.tier,
  updated_at = EXCLUDED.updated_at;`

	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, q, account.ID, account.Email, string(account.Tier), account.CreatedAt, account.UpdatedAt)
	return err
}

func (r *AccountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	const q = `SELECT id, email, tier, created_at, updated_at FROM accounts WHERE id = $1;`

	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	var (
		acc     model.Account
		tierStr string
	)
	err = ex.QueryRow(ctx, q, id).Scan(&acc.ID, &acc.Email, &tierStr, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	acc.Tier = model.AccountTier(tierStr)
	return &acc, nil
}

func (r *AccountRepo) IsPrivileged(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	acc, err := r.FindByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return acc.Privileged(), nil
}
