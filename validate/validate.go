// Package validate implements the rule layer shared by every maintenance
// service. Rules are pure functions returning zero or more violation strings;
// callers run every rule and raise a single Failure carrying the complete
// list, so a client can correct a request in one round trip instead of
// replaying it once per violation.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Rule produces zero or more violation messages. Rules must not have side
// effects; referential checks run against data loaded before validation.
type Rule func() []string

// Collect runs every rule and aggregates all violations. It never stops at
// the first error.
func Collect(rules ...Rule) []string {
	var violations []string
	for _, rule := range rules {
		violations = append(violations, rule()...)
	}
	return violations
}

// Failure carries every violated rule for one request.
type Failure struct {
	Violations []string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("validate: %d violation(s): %s", len(f.Violations), strings.Join(f.Violations, "; "))
}

// NewFailure returns a *Failure for a non-empty violation list and nil
// otherwise, so callers can return its result directly.
func NewFailure(violations []string) error {
	if len(violations) == 0 {
		return nil
	}
	return &Failure{Violations: violations}
}

// AsFailure unwraps a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// NotFoundError distinguishes an unknown resource from a malformed request.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("validate: %s %s not found", e.Entity, e.ID)
}

// NotFound constructs a NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// NonEmpty requires a non-blank string field.
func NonEmpty(field, value string) Rule {
	return func() []string {
		if strings.TrimSpace(value) == "" {
			return []string{field + " is required"}
		}
		return nil
	}
}

// ActingUser requires the caller identity on every mutating operation. It is
// never silently defaulted.
func ActingUser(user string) Rule {
	return NonEmpty("acting user", user)
}

// DatesOrdered requires effective on or before expiration.
func DatesOrdered(effective, expiration time.Time) Rule {
	return func() []string {
		if expiration.Before(effective) {
			return []string{fmt.Sprintf("effective date %s is after expiration date %s",
				effective.Format("2006-01-02"), expiration.Format("2006-01-02"))}
		}
		return nil
	}
}

// NotAfter requires a date on or before the given bound, typically the
// forever sentinel.
func NotAfter(field string, value, bound time.Time) Rule {
	return func() []string {
		if value.After(bound) {
			return []string{fmt.Sprintf("%s %s is after %s",
				field, value.Format("2006-01-02"), bound.Format("2006-01-02"))}
		}
		return nil
	}
}

// InSet requires value to be one of the allowed codes.
func InSet(field, value string, allowed []string) Rule {
	return func() []string {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return []string{fmt.Sprintf("%s %q is not an allowed value", field, value)}
	}
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Struct runs tag-based checks on a request DTO and folds every field error
// into the same violation-string format the rule helpers use.
func Struct(v any) Rule {
	return func() []string {
		err := structValidator.Struct(v)
		if err == nil {
			return nil
		}
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return []string{err.Error()}
		}
		violations := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			violations = append(violations, fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag()))
		}
		return violations
	}
}
