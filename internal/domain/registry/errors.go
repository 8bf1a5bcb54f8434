package registry

import (
	"fmt"

	"github.com/okian/adroute/internal/domain/model"
)

// ErrCorrupt marks a stored record that no codec can read. It is a store
// fault rather than an absence.
var ErrCorrupt = fmt.Errorf("corrupt buyer record: %w", model.ErrStore)
