package gqlrequest

import (
	"errors"
	"fmt"
)

// ErrLimitExceeded marks requests rejected by Limits.Check.
var ErrLimitExceeded = errors.New("query limit exceeded")

// Limits bounds the shape of an accepted operation. Zero disables a limit.
type Limits struct {
	MaxDepth    int `mapstructure:"max_depth"`
	MaxFields   int `mapstructure:"max_fields"`
	MaxBackrefs int `mapstructure:"max_backrefs"`
}

// Enabled reports whether any limit is set.
func (l Limits) Enabled() bool {
	return l.MaxDepth > 0 || l.MaxFields > 0 || l.MaxBackrefs > 0
}

// Check validates an analyzed operation against the limits. Requests that
// failed to parse are left to the GraphQL handler to report.
func (l Limits) Check(a *Analysis) error {
	if a == nil || a.Operation == nil {
		return nil
	}
	if l.MaxDepth > 0 && a.SelectionDepth > l.MaxDepth {
		return fmt.Errorf("%w: maximum depth is %d (depth: %d)", ErrLimitExceeded, l.MaxDepth, a.SelectionDepth)
	}
	if l.MaxFields > 0 && a.FieldCount > l.MaxFields {
		return fmt.Errorf("%w: maximum field count is %d (fields: %d)", ErrLimitExceeded, l.MaxFields, a.FieldCount)
	}
	if l.MaxBackrefs > 0 && a.BackrefCount > l.MaxBackrefs {
		return fmt.Errorf("%w: maximum backref selections is %d (backrefs: %d)", ErrLimitExceeded, l.MaxBackrefs, a.BackrefCount)
	}
	return nil
}
