package constants

import "errors"

// Configuration errors.
var (
	ErrNoProfileConfigured = errors.New("no profile configured, use 'cbc config set' or CBC_* environment variables")
	ErrUnknownConfigKey    = errors.New("unknown configuration key")
)

// Validation errors.
var (
	ErrInvalidOutputFormat = errors.New("invalid output format, use table, json or yaml")
	ErrReasonRequired      = errors.New("--reason flag is required")
	ErrFacetFieldRequired  = errors.New("at least one facet field is required")
)
