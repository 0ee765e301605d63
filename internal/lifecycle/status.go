package lifecycle

import (
	"fmt"
	"strings"

	"luna-backend/internal/model"
)

// DisplayNavigating is how the navigating state is shown to students.
const DisplayNavigating = "in-transit"

var order = []model.RequestStatus{
	model.RequestStatusPending,
	model.RequestStatusNavigating,
	model.RequestStatusReady,
	model.RequestStatusCompleted,
}

// rank is the position of a status in the forward-only sequence, or -1 when unknown.
func rank(s model.RequestStatus) int {
	for i, o := range order {
		if o == s {
			return i
		}
	}
	return -1
}

// Next returns the state that follows s. The second result is false for the terminal state and unknown values.
func Next(s model.RequestStatus) (model.RequestStatus, bool) {
	r := rank(s)
	if r < 0 || r == len(order)-1 {
		return "", false
	}
	return order[r+1], true
}

// IsTerminal reports whether no further transition can leave s.
func IsTerminal(s model.RequestStatus) bool {
	return s == model.RequestStatusCompleted
}

// ParseStatus maps a stored or client-supplied status string to its canonical value.
// Legacy rows written as "robot_navigating" and the display alias "in-transit" both mean navigating.
func ParseStatus(raw string) (model.RequestStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return model.RequestStatusPending, nil
	case "navigating", "robot_navigating", DisplayNavigating:
		return model.RequestStatusNavigating, nil
	case "ready":
		return model.RequestStatusReady, nil
	case "completed":
		return model.RequestStatusCompleted, nil
	}
	return "", fmt.Errorf("unknown request status %q", raw)
}

// DisplayStatus is the label shown to students for s.
func DisplayStatus(s model.RequestStatus) string {
	if s == model.RequestStatusNavigating {
		return DisplayNavigating
	}
	return string(s)
}
