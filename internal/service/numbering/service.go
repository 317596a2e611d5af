// Package numbering issues gap-tolerant, prefixed document numbers from
// named sequences. Allocation is atomic: the store takes a row lock on the
// sequence while advancing it.
package numbering

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

// Store provides locked read-modify-write access to sequence rows.
type Store interface {
	// UpdateSequence loads the named sequence, applies fn to it while
	// holding the store's lock on that sequence, and persists the result
	// when fn returns nil. The whole read-modify-write is one atomic unit,
	// so concurrent allocators on the same sequence serialize.
	UpdateSequence(ctx context.Context, name string, fn func(seq *ledger.Sequence) error) error
}

// Service allocates formatted document numbers.
type Service interface {
	Next(ctx context.Context, name string) (string, error)
}

type service struct {
	store Store
}

func New(store Store) Service { return &service{store: store} }

// Next allocates the next number from the named sequence. When the sequence
// would exceed MaxValue it wraps to MinValue if Cycle is set, otherwise
// fails with ErrSequenceExhausted.
func (s *service) Next(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errs.ErrInvalid
	}
	var number string
	err := s.store.UpdateSequence(ctx, name, func(seq *ledger.Sequence) error {
		value := seq.NextValue
		if seq.MaxValue > 0 && value > seq.MaxValue {
			if !seq.Cycle {
				return fmt.Errorf("sequence %s: %w", name, errs.ErrSequenceExhausted)
			}
			value = seq.MinValue
			seq.NextValue = seq.MinValue
		}
		inc := seq.IncrementBy
		if inc <= 0 {
			inc = 1
		}
		seq.NextValue += inc
		number = Format(*seq, value)
		return nil
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

// Format renders a sequence value as {PREFIX}{VALUE}{SUFFIX} with the
// numeric portion left-padded to the sequence width.
func Format(seq ledger.Sequence, value int64) string {
	num := strconv.FormatInt(value, 10)
	if seq.Pad > len(num) {
		num = strings.Repeat("0", seq.Pad-len(num)) + num
	}
	return seq.Prefix + num + seq.Suffix
}
