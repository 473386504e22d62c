package core

import "errors"

// Errores sentinela del store. Los adapters los devuelven directos o
// envueltos; los llamadores comparan con errors.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
)
