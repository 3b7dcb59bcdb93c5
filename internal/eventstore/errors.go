package eventstore

import "errors"

// ErrRunNotFound is returned for lookups of unknown run IDs.
var ErrRunNotFound = errors.New("run not found in registry")
