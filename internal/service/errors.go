package service

import "errors"

// Input data errors. Items failing with one of these are skipped, never fatal
// to a run.
var (
	ErrSiteNotFound       = errors.New("site not found")
	ErrSiteDisabled       = errors.New("site is disabled")
	ErrMissingCredentials = errors.New("site credentials missing")
	ErrInvalidSchedule    = errors.New("invalid schedule")
)
