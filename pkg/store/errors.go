package store

type ErrNotFound struct {
}

func (e *ErrNotFound) Error() string {
	return "not found"
}

func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

// ErrNotReady is returned by store operations that run before Open has
// completed. Callers treat it as retryable, not fatal.
type ErrNotReady struct {
}

func (e *ErrNotReady) Error() string {
	return "store not ready"
}

func IsNotReady(err error) bool {
	_, ok := err.(*ErrNotReady)
	return ok
}
