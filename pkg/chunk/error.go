package chunk

import "errors"

// ErrMissingLanguage is returned when a code document does not name its
// language in metadata.
var ErrMissingLanguage = errors.New("code split requires a language metadata key")
