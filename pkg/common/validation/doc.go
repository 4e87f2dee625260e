// Package validation holds the constructor and configuration checks shared
// by the pool, the scheduler and the server configuration. Every failure is
// returned as a *errors.ValidationError so callers can match
// errors.ErrInvalidConfiguration.
package validation
