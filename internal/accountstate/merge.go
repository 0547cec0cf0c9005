package accountstate

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"prospector/internal/metrics"
	"prospector/internal/model"
)

// ErrConflict means every compare-and-swap attempt lost to a concurrent writer.
var ErrConflict = errors.New("account state changed concurrently")

// Repo is the slice of the account store the merger needs.
type Repo interface {
	GetAccount(ctx context.Context, userID, id string) (model.Account, error)
	// CompareAndSwapNotes writes next only if the stored notes still equal prev.
	CompareAndSwapNotes(ctx context.Context, userID, id, prev, next string) (bool, error)
}

// Merger performs read-modify-write cycles on an account's notes blob.
type Merger struct {
	Repo        Repo
	MaxAttempts int
	Log         *zap.Logger
}

func NewMerger(repo Repo, log *zap.Logger) *Merger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Merger{Repo: repo, MaxAttempts: 5, Log: log}
}

// Update applies mutate to the account's current state and writes the whole
// object back. If another writer got there first the cycle starts over with a
// fresh read. A mutation returning ErrNoChange skips the write.
func (m *Merger) Update(ctx context.Context, userID, accountID string, mutate func(*State) error) (*State, error) {
	attempts := m.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		acct, err := m.Repo.GetAccount(ctx, userID, accountID)
		if err != nil {
			return nil, err
		}
		st := Parse(acct.Notes)
		if err := mutate(st); err != nil {
			if errors.Is(err, ErrNoChange) {
				metrics.StateWrites.WithLabelValues("unchanged").Inc()
				return st, nil
			}
			return nil, err
		}
		next, err := st.Encode()
		if err != nil {
			return nil, err
		}
		ok, err := m.Repo.CompareAndSwapNotes(ctx, userID, accountID, acct.Notes, next)
		if err != nil {
			return nil, err
		}
		if ok {
			metrics.StateWrites.WithLabelValues("written").Inc()
			return st, nil
		}
		m.Log.Debug("account state write lost race, retrying",
			zap.String("account_id", accountID), zap.Int("attempt", i+1))
	}
	metrics.StateWrites.WithLabelValues("conflict").Inc()
	return nil, ErrConflict
}

// SortHistory orders receipts ascending by raw date for charting.
func SortHistory(h []model.MonthlyReceipt) {
	sort.SliceStable(h, func(i, j int) bool { return h[i].RawDate < h[j].RawDate })
}
