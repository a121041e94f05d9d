package repository

import (
	"context"

	"github.com/jmobrien1/mdraft/internal/domain/model"
)

type AccountRepository interface {
	Save(ctx context.Context, tx Tx, account *model.Account) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Account, error)
	// IsPrivileged reports whether the account's tier routes its work to the
	// high-priority queue. Unknown accounts (and visitors) are not privileged.
	IsPrivileged(ctx context.Context, tx Tx, id string) (bool, error)
}
