package app

import "errors"

// Service-level validation errors. Deterministic rejections the caller
// should not retry; transient storage errors surface from the store package.
var (
	ErrInvalidPropertyID = errors.New("property id is required")
	ErrInvalidCode       = errors.New("code value is required")
	ErrEmptyNote         = errors.New("note content is required")
	ErrInvalidDocument   = errors.New("document url, name and type are required")
	ErrInvalidDecision   = errors.New("decision must be 'processing' or 'rejected'")
	ErrRateLimited       = errors.New("too many code submissions; retry later")
)
