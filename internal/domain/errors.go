package domain

import "errors"

// Failure taxonomy. Callers wrap these with fmt.Errorf("%w: ...") and
// match with errors.Is.
var (
	// ErrNetwork is a transport-level failure talking to the search provider.
	ErrNetwork = errors.New("network failure")
	// ErrDecoding means the provider answered with a malformed body.
	ErrDecoding = errors.New("decoding failure")
	// ErrNoResults is returned for an empty term when no default term is configured.
	ErrNoResults = errors.New("no search term")
	// ErrStorage is a favorite persistence read or write failure.
	ErrStorage = errors.New("storage failure")
	// ErrNotFound is returned when a favorite or session does not exist.
	ErrNotFound = errors.New("not found")
)

// IsFetchFailure reports whether err should move a session into the error state.
func IsFetchFailure(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrDecoding) || errors.Is(err, ErrNoResults)
}
