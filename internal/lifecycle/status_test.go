package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna-backend/internal/model"
)

func TestNext(t *testing.T) {
	next, ok := Next(model.RequestStatusPending)
	require.True(t, ok)
	assert.Equal(t, model.RequestStatusNavigating, next)

	next, ok = Next(model.RequestStatusNavigating)
	require.True(t, ok)
	assert.Equal(t, model.RequestStatusReady, next)

	next, ok = Next(model.RequestStatusReady)
	require.True(t, ok)
	assert.Equal(t, model.RequestStatusCompleted, next)

	_, ok = Next(model.RequestStatusCompleted)
	assert.False(t, ok)
	_, ok = Next("robot_navigating")
	assert.False(t, ok, "legacy values must be parsed before use")
}

func TestParseStatus(t *testing.T) {
	testCases := []struct {
		raw  string
		want model.RequestStatus
	}{
		{"pending", model.RequestStatusPending},
		{"navigating", model.RequestStatusNavigating},
		{"robot_navigating", model.RequestStatusNavigating},
		{"In-Transit", model.RequestStatusNavigating},
		{" ready ", model.RequestStatusReady},
		{"completed", model.RequestStatusCompleted},
	}
	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseStatus(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ParseStatus("cancelled")
	assert.Error(t, err)
}

func TestDisplayStatus(t *testing.T) {
	assert.Equal(t, "in-transit", DisplayStatus(model.RequestStatusNavigating))
	assert.Equal(t, "ready", DisplayStatus(model.RequestStatusReady))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindNotFound, KindOf(notFoundError("op", "missing")))
	assert.Equal(t, KindDependency, KindOf(assert.AnError))
	assert.Equal(t, KindAuth, KindOf(AuthError("op", "no token")))

	err := dependencyError("create request", "Failed to create book request", assert.AnError)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "create request")
}
