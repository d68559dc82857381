package automation

import "errors"

// Sentinel errors for automation operations.
// Use errors.Is() to check for these conditions.
var (
	// ErrRuleNotFound indicates the requested rule does not exist.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrInvalidComparator indicates a comparator outside >, <, >=, <=, =.
	ErrInvalidComparator = errors.New("invalid comparator")

	// ErrInvalidParameter indicates a rule referencing an unknown metric.
	ErrInvalidParameter = errors.New("invalid rule parameter")
)
