package tourdex

import "github.com/openpano/tourdex/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNoIndex         = domain.ErrNoIndex
	ErrEntryNotFound   = domain.ErrEntryNotFound
	ErrQueryTooShort   = domain.ErrQueryTooShort
	ErrSourceAbsent    = domain.ErrSourceAbsent
	ErrDatasetDisabled = domain.ErrDatasetDisabled
)
