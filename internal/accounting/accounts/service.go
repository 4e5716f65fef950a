package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/finledger/finledger/internal/accounting/shared"
)

// ErrSystemAccount blocks deleting accounts flagged as system-owned.
var ErrSystemAccount = errors.New("accounts: system account cannot be deleted")

// ErrAccountInUse blocks deleting accounts referenced by posted lines.
var ErrAccountInUse = errors.New("accounts: account referenced by posted lines")

// Service is the account directory. Posting paths use ResolvePostable to
// validate line accounts in one batch lookup.
type Service struct {
	repo  Repository
	cache *Cache
}

func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	if s.cache == nil {
		return s.repo.Get(ctx, id)
	}
	return s.cache.Fetch(ctx, id, func(ctx context.Context) (Account, error) {
		return s.repo.Get(ctx, id)
	})
}

func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, strings.TrimSpace(code))
}

// ResolvePostable loads all referenced accounts at once and rejects ids that
// are missing or not postable detail accounts.
func (s *Service) ResolvePostable(ctx context.Context, ids []int64) (map[int64]Account, error) {
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	found, err := s.repo.GetByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	for _, id := range unique {
		account, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("account %d: %w", id, shared.ErrUnknownAccount)
		}
		if !account.Postable() {
			return nil, fmt.Errorf("account %s is not a postable detail account: %w", account.Code, shared.ErrUnknownAccount)
		}
	}
	return found, nil
}

func (s *Service) Create(ctx context.Context, in Account) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	if in.Code == "" {
		return Account{}, errors.New("accounts: code required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return Account{}, errors.New("accounts: name required")
	}
	switch in.Type {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeCOGS, AccountTypeExpense:
	default:
		return Account{}, fmt.Errorf("accounts: unknown type %q", in.Type)
	}
	if in.NormalBalance == "" {
		in.NormalBalance = DefaultNormalBalance(in.Type)
	}
	in.IsActive = true
	return s.repo.Create(ctx, in)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if account.IsSystemAccount {
		return ErrSystemAccount
	}
	inUse, err := s.repo.HasPostedLines(ctx, id)
	if err != nil {
		return err
	}
	if inUse {
		return ErrAccountInUse
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, id)
	return nil
}
