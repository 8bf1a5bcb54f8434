package repository

import (
	"errors"
	"fmt"

	"github.com/okian/adroute/internal/domain/model"
)

// Sentinel kinds for store errors. They wrap the shared domain kinds so
// callers can classify with errors.Is against either package.
var (
	ErrNotFound = fmt.Errorf("key %w", model.ErrNotFound)
	ErrConflict = fmt.Errorf("guard violated: %w", model.ErrConflict)
	ErrClosed   = fmt.Errorf("store closed: %w", model.ErrStore)
)

// storeError wraps a transport failure as model.ErrStore.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrStore) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrStore, err)
}
