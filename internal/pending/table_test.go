package pending

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParkAndTake(t *testing.T) {
	tbl := New()
	cont := NewUserInput("req-1", 42)
	require.NoError(t, tbl.Park(cont))
	assert.Equal(t, 1, tbl.Len())

	got, ok := tbl.Take("req-1")
	require.True(t, ok)
	assert.Equal(t, KindUserInput, got.Kind())
	assert.Equal(t, 0, tbl.Len())

	_, ok = tbl.Take("req-1")
	assert.False(t, ok, "Take must remove the entry")
}

func TestParkRejectsDuplicateRequestID(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Park(NewUserInput("req-1", 1)))
	err := tbl.Park(NewGetCollectionSecret("req-1", 2, "vault", "hash"))
	assert.Error(t, err)
	assert.Equal(t, 1, tbl.Len())
}

func TestTakeUnknownID(t *testing.T) {
	tbl := New()
	got, ok := tbl.Take("never-parked")
	assert.False(t, ok)
	assert.Nil(t, got)
}
