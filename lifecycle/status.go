// Package lifecycle holds the report status machine: pending -> acknowledged, nothing else.
package lifecycle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sosdesk/models"
)

var (
	ErrInvalidOperator = errors.New("operatorId must be a non-zero integer")
	ErrInvalidReport   = errors.New("reportId must be a positive integer")
)

// Policy decides what a repeated acknowledgment does to authorship.
type Policy string

const (
	// PolicyOverwrite re-applies the assignment on every acknowledgment, so the latest
	// operator is recorded.
	PolicyOverwrite Policy = "overwrite"
	// PolicyFirstWins accepts a repeated acknowledgment as a no-op and keeps the first operator.
	PolicyFirstWins Policy = "first-wins"
)

// ParsePolicy maps a config value to a Policy. Unknown values fall back to PolicyOverwrite.
func ParsePolicy(value string) Policy {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case PolicyFirstWins:
		return PolicyFirstWins
	default:
		return PolicyOverwrite
	}
}

// ParseOperatorID validates an operator identifier. Empty, non-integer and zero are rejected.
func ParseOperatorID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOperator, value)
	}
	if id == 0 {
		return 0, ErrInvalidOperator
	}
	return id, nil
}

// ParseReportID validates a report identifier.
func ParseReportID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidReport, value)
	}
	return id, nil
}

// CanTransition reports whether an acknowledgment changes the stored record under the policy.
func CanTransition(current models.Status, policy Policy) bool {
	if current == models.StatusPending {
		return true
	}
	return policy == PolicyOverwrite
}

// RequiresPending reports whether an acknowledgment may only touch a pending report under
// the policy. Stores use it to guard their update.
func RequiresPending(policy Policy) bool {
	return !CanTransition(models.StatusAcknowledged, policy)
}
