package domain

import "errors"

var (
	// ErrNoIndex signals that no index has been built yet.
	ErrNoIndex = errors.New("index not built")
	// ErrEntryNotFound signals a dispatch request for an unknown entry.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrQueryTooShort signals a search term below the configured minimum.
	ErrQueryTooShort = errors.New("query too short")
	// ErrSourceAbsent signals a node without a usable media payload.
	ErrSourceAbsent = errors.New("media payload absent")
	// ErrDatasetDisabled signals that the external dataset is not configured.
	ErrDatasetDisabled = errors.New("external dataset disabled")
	// ErrCacheMiss signals an absent or expired dataset cache record.
	ErrCacheMiss = errors.New("dataset cache miss")
)
