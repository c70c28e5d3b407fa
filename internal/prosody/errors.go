package prosody

import "errors"

var (
	// ErrEmptyText is returned when there is nothing to analyze.
	ErrEmptyText = errors.New("text is empty")

	// ErrTextTooLong is returned when text exceeds MaxTextLength.
	ErrTextTooLong = errors.New("text exceeds maximum length")

	// ErrInvalidWord is returned when a word does not conform to the schema.
	ErrInvalidWord = errors.New("invalid word")

	// ErrUnknownProvider is returned when a provider name is not registered.
	ErrUnknownProvider = errors.New("unknown prosody provider")
)
