package validation

import (
	"net"
	"strconv"

	rerrors "github.com/vnykmshr/ruginx/pkg/common/errors"
)

// ValidatePositive validates that an integer value is positive (> 0).
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return rerrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateNonNegative validates that an integer value is zero or greater.
// Zero conventionally means "unlimited" for the fields that use it.
func ValidateNonNegative(module, field string, value int) error {
	if value < 0 {
		return rerrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 for no limit or a positive value")
	}
	return nil
}

// ValidateNotNil validates that an interface value is not nil.
// A typed nil pointer stored in the interface is not rejected.
func ValidateNotNil(module, field string, value interface{}) error {
	if value == nil {
		return rerrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return rerrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}

// ValidateListenAddr validates a host:port listen address. The host may be
// empty; the port must be numeric.
func ValidateListenAddr(module, field string, value string) error {
	_, port, err := net.SplitHostPort(value)
	if err != nil {
		return rerrors.NewValidationError(module, field, value, "must be host:port").
			WithHint("for example 127.0.0.1:7878 or :7878")
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return rerrors.NewValidationError(module, field, value, "port out of range").
			WithHint("use a port between 0 and 65535")
	}
	return nil
}
