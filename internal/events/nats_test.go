package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/index"
)

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*headerCarrier)(msg)

	assert.Empty(t, carrier.Get("traceparent"))
	assert.Nil(t, carrier.Keys())

	carrier.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", carrier.Get("traceparent"))
	assert.Len(t, carrier.Keys(), 1)
}

func TestNATSPublisher_Message(t *testing.T) {
	// Given: a publisher (no connection is needed to build messages)
	p := &NATSPublisher{subject: Subject("ragindex.progress", "abc123"), projectID: "abc123", root: "/work/app"}

	// When: encoding a snapshot
	msg, err := p.message(context.Background(), index.IndexProgress{
		Status: index.StatusFailed, TotalFiles: 2, Error: "flush failed",
	})
	require.NoError(t, err)

	// Then: the subject is per project and the payload round-trips
	assert.Equal(t, "ragindex.progress.abc123", msg.Subject)
	var decoded ProgressMessage
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, "abc123", decoded.ProjectID)
	assert.Equal(t, "/work/app", decoded.Root)
	assert.Equal(t, index.StatusFailed, decoded.Progress.Status)
	assert.Equal(t, "flush failed", decoded.Progress.Error)
	assert.False(t, decoded.SentAt.IsZero())
}

func TestNewNATSPublisher_Unreachable(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1", "ragindex.progress", "p", "/tmp", nil)
	assert.Error(t, err)
}
