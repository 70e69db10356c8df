package server

// ErrAlreadyResolved reports that the server has already recorded the
// round. Callers treat it as a successful idempotent no-op.
type ErrAlreadyResolved struct {
}

func (e *ErrAlreadyResolved) Error() string {
	return "round already resolved"
}

func IsAlreadyResolved(err error) bool {
	_, ok := err.(*ErrAlreadyResolved)
	return ok
}

// ErrUnauthorized reports an authentication failure on a remote call.
// The sync engine leaves the action queued like any other transient
// failure; the excluded auth collaborator owns recovery.
type ErrUnauthorized struct {
}

func (e *ErrUnauthorized) Error() string {
	return "unauthorized"
}

func IsUnauthorized(err error) bool {
	_, ok := err.(*ErrUnauthorized)
	return ok
}
