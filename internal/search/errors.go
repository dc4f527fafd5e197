package search

import "errors"

var (
	// ErrLexicalUnavailable is returned when hybrid mode is requested but no
	// lexical searcher is configured. This is a caller error, not a
	// degradation case.
	ErrLexicalUnavailable = errors.New("lexical search not configured")

	// ErrInvalidMode is returned for an unrecognized search mode.
	ErrInvalidMode = errors.New("invalid search mode")

	// ErrScoreOutOfRange reports a normalized score outside [0,1]. That is a
	// defect in normalization, never a data condition, and must fail loudly
	// rather than be clamped.
	ErrScoreOutOfRange = errors.New("normalized score out of [0,1]")
)
