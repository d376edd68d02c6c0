package statesync

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationJSONRoundTrip(t *testing.T) {
	orig := &Operation{
		ID:        "op-1",
		Type:      OpUpdate,
		DataType:  "tasks",
		Key:       "tasks/1",
		Payload:   Payload{"id": "1", "title": "x"},
		Component: "comp-1",
		Source:    "timer",
		Priority:  PriorityHigh,
		Timestamp: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		Status:    StatusFailed,
		Attempts:  2,
		Err:       errors.New("boom"),
	}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var got Operation
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, OpUpdate, got.Type)
	assert.Equal(t, "tasks/1", got.Key)
	assert.Equal(t, PriorityHigh, got.Priority)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	require.Error(t, got.Err)
	assert.Equal(t, "boom", got.Err.Error())
}

func TestOperationRecoveryNormalizesStatus(t *testing.T) {
	// Processing and blocked states do not survive a restart; recovered
	// records restart from pending.
	for _, status := range []OpStatus{StatusProcessing, StatusBlocked, StatusPending} {
		op := &Operation{ID: "op", Type: OpSync, DataType: "tasks", Status: status}
		data, err := json.Marshal(op)
		require.NoError(t, err)

		var got Operation
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, StatusPending, got.Status, status.String())
	}
}

func TestOperationUnmarshalRejectsUnknown(t *testing.T) {
	var op Operation
	err := json.Unmarshal([]byte(`{"id":"x","type":"upsert","status":"pending"}`), &op)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"id":"x","type":"update","status":"limbo"}`), &op)
	assert.Error(t, err)
}

func TestParseOpType(t *testing.T) {
	for _, typ := range []OpType{OpCreate, OpUpdate, OpDelete, OpSync} {
		got, err := ParseOpType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseOpType("merge")
	assert.Error(t, err)
}

func TestParsePriority(t *testing.T) {
	got, err := ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, got, "empty config value defaults to normal")

	for _, p := range []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical} {
		got, err := ParsePriority(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err = ParsePriority("urgent")
	assert.Error(t, err)
}

func TestPayloadClone(t *testing.T) {
	p := Payload{"a": 1}
	c := p.Clone()
	c["a"] = 2
	assert.Equal(t, 1, p["a"])

	var nilPayload Payload
	assert.Nil(t, nilPayload.Clone())
}
