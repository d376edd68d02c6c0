package statesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPayloadStable(t *testing.T) {
	a := Payload{"title": "x", "done": false, "count": float64(3)}
	b := Payload{"count": float64(3), "done": false, "title": "x"}

	assert.Equal(t, HashPayload(a), HashPayload(b), "key order must not affect the hash")
	assert.NotEqual(t, HashPayload(a), HashPayload(Payload{"title": "y"}))
	assert.Equal(t, "", HashPayload(nil))
}

func TestDetectConflict(t *testing.T) {
	now := time.Now()
	local := Payload{"title": "local"}
	server := Payload{"title": "server"}

	c := DetectConflict("op-1", "tasks", "tasks/1", local, server, LastWriteWins, now)
	require.NotNil(t, c)
	assert.Equal(t, "op-1", c.OperationID)
	assert.Equal(t, "tasks", c.DataType)
	assert.Equal(t, "tasks/1", c.Key)
	assert.Equal(t, LastWriteWins, c.Strategy)
	assert.Equal(t, now, c.DetectedAt)
	assert.NotEqual(t, c.LocalHash, c.ServerHash)
}

func TestDetectConflictNoDivergence(t *testing.T) {
	now := time.Now()
	same := Payload{"title": "x"}

	assert.Nil(t, DetectConflict("op", "tasks", "k", same, same.Clone(), ServerWins, now))
	assert.Nil(t, DetectConflict("op", "tasks", "k", nil, same, ServerWins, now), "missing local side is not a conflict")
	assert.Nil(t, DetectConflict("op", "tasks", "k", same, nil, ServerWins, now), "missing server side is not a conflict")
}

func TestHasDataChanged(t *testing.T) {
	old := Payload{"title": "x", "updated_at": int64(100)}
	updated := Payload{"title": "x", "updated_at": int64(200)}

	assert.True(t, hasDataChanged(old, updated, nil))
	assert.False(t, hasDataChanged(old, updated, []string{"updated_at"}),
		"ignored fields must not count as changes")
	assert.True(t, hasDataChanged(old, Payload{"title": "y", "updated_at": int64(100)}, []string{"updated_at"}))
	assert.False(t, hasDataChanged(nil, nil, nil))
}
