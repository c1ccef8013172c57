package orderbook

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// Kind selects a Book implementation.
type Kind string

const (
	KindMap   Kind = "map"
	KindBTree Kind = "btree"
)

// ParseKind maps a config value to a Kind. Empty selects KindMap.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindMap:
		return KindMap, nil
	case KindBTree:
		return KindBTree, nil
	default:
		return "", fmt.Errorf("orderbook: unknown book kind %q", s)
	}
}

// Factory creates an empty book for a key.
type Factory func(key domain.BookKey) Book

// NewFactory returns a Factory for kind. Every created book reports to observe.
func NewFactory(kind Kind, observe Observer) Factory {
	if kind == KindBTree {
		return func(key domain.BookKey) Book { return NewTreeBook(key, observe) }
	}
	return func(key domain.BookKey) Book { return NewMapBook(key, observe) }
}

type readOnly struct {
	domain.MarketState
}

// View wraps b so that callers only see the read accessors.
func View(b Book) domain.MarketState {
	return readOnly{MarketState: b}
}
