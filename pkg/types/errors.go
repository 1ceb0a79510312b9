package types

import "errors"

// ErrValidation is the root of all entity field validation failures. Call
// sites wrap it with the specific field complaint.
var ErrValidation = errors.New("validation failed")
