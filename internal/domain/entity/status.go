package entity

import "strings"

// Status represents a stage in the expense lifecycle
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusPayable  Status = "payable"
	StatusClosed   Status = "closed"
)

// statusOrder fixes the forward-only lifecycle:
// draft -> pending -> approved -> payable -> closed
var statusOrder = []Status{
	StatusDraft,
	StatusPending,
	StatusApproved,
	StatusPayable,
	StatusClosed,
}

var statusRank = func() map[Status]int {
	m := make(map[Status]int, len(statusOrder))
	for i, s := range statusOrder {
		m[s] = i
	}
	return m
}()

// ParseStatus coerces a raw value to a known status, case-insensitively.
// Returns false when the value is not one of the five lifecycle states.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := statusRank[s]
	return s, ok
}

// IsValid returns true if the status is a known lifecycle state
func (s Status) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsTerminal returns true if no further transitions are allowed
func (s Status) IsTerminal() bool {
	return s == StatusClosed
}

// Next returns the immediate successor status. ok is false for the
// terminal state and for unknown statuses.
func (s Status) Next() (Status, bool) {
	rank, ok := statusRank[s]
	if !ok || rank+1 >= len(statusOrder) {
		return "", false
	}
	return statusOrder[rank+1], true
}

// CanTransitionTo reports whether next is the immediate successor of s.
// Skipping ahead and moving backward are both forbidden.
func (s Status) CanTransitionTo(next Status) bool {
	succ, ok := s.Next()
	return ok && succ == next
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}
