package search

import "fmt"

// UnknownStrategyError is returned when a search names a strategy that is
// not registered.
type UnknownStrategyError struct {
	Name string
}

func (e UnknownStrategyError) Error() string {
	return "unknown search strategy: " + e.Name
}

// InvalidFilterError is returned when a filter references an unknown field
// or operator, or carries a malformed value. Filters are validated eagerly,
// before any query work begins, so caller bugs surface instead of being
// silently ignored.
type InvalidFilterError struct {
	Field    string
	Operator string
	Reason   string
}

func (e InvalidFilterError) Error() string {
	msg := "invalid filter"
	if e.Field != "" {
		msg += " on field " + e.Field
	}
	if e.Operator != "" {
		msg += " with operator " + e.Operator
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// StrategyError wraps a strategy execution failure with the strategy name
// so callers can diagnose which path failed.
type StrategyError struct {
	Strategy string
	Err      error
}

func (e StrategyError) Error() string {
	return fmt.Sprintf("strategy %q failed: %v", e.Strategy, e.Err)
}

func (e StrategyError) Unwrap() error {
	return e.Err
}
