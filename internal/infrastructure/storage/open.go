package storage

import (
	"github.com/pkg/errors"
	"github.com/vitos/coinbot/internal/domain"
)

// Stores bundles the state backend with the optional trade journal.
type Stores struct {
	State  domain.StateStore
	Trades domain.TradeRepository // nil for the file backend
	close  func() error
}

func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open opens the state backend ("file" or "sqlite") at path. Only the
// sqlite backend keeps a trade journal.
func Open(backend, path, productID string) (*Stores, error) {
	switch backend {
	case "file":
		return &Stores{State: NewFileStateStore(path)}, nil
	case "sqlite":
		db, err := NewSQLiteStore(path, productID)
		if err != nil {
			return nil, err
		}
		return &Stores{State: db, Trades: db, close: db.Close}, nil
	default:
		return nil, errors.Errorf("unknown state backend %q", backend)
	}
}
