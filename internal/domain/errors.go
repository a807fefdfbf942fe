package domain

import "errors"

// ErrConfiguration marks a caller bug in the parameters of a domain object
// (wrong-side stop level, non-positive size or price). It is fatal to the
// specific request and never corrupts existing state.
var ErrConfiguration = errors.New("invalid configuration")
