package sqlite

import (
	"github.com/relves/landreg/internal/storage"
)

// Ensure Store implements StateStore at compile time.
var _ storage.StateStore = (*Store)(nil)
