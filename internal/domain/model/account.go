package model

import "time"

type AccountTier string

const (
	AccountTierFree AccountTier = "free"
	AccountTierPro  AccountTier = "pro"
)

type Account struct {
	ID        string
	Email     string
	Tier      AccountTier
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Account) Privileged() bool {
	return a.Tier == AccountTierPro
}
