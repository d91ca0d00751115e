package warehouse

import "errors"

// ErrNotFound indicates the requested row does not exist within the given
// tenant scope.
var ErrNotFound = errors.New("warehouse: not found")
