package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEnqueuer struct {
	events []ExternalEvent
	err    error
}

func (s *stubEnqueuer) EnqueueLedgerEvent(ctx context.Context, event ExternalEvent) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.events = append(s.events, event)
	return &asynq.TaskInfo{ID: "task-1", Queue: "default"}, nil
}

const sampleEventBody = `{
	"eventId": "evt-42",
	"eventType": "ORDER.COMPLETED",
	"businessDate": "2026-03-15T00:00:00Z",
	"actorId": 7,
	"grandTotal": 1100,
	"subtotal": 1000,
	"totalTax": 100
}`

func TestHandleAsyncEnqueues(t *testing.T) {
	enq := &stubEnqueuer{}
	h := NewHandler(nil, nil, enq)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/async", strings.NewReader(sampleEventBody))
	h.HandleAsync(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Contains(t, rr.Body.String(), `"taskId":"task-1"`)
	require.Len(t, enq.events, 1)
	assert.Equal(t, "evt-42", enq.events[0].EventID)
	assert.Equal(t, int64(7), enq.events[0].ActorID)
}

func TestHandleAsyncWithoutQueue(t *testing.T) {
	h := NewHandler(nil, nil, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/async", strings.NewReader(sampleEventBody))
	h.HandleAsync(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandleAsyncRejectsInvalidEvent(t *testing.T) {
	enq := &stubEnqueuer{}
	h := NewHandler(nil, nil, enq)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/async", strings.NewReader(`{"eventType":"ORDER.COMPLETED"}`))
	h.HandleAsync(rr, req)

	assert.NotEqual(t, http.StatusAccepted, rr.Code)
	assert.Empty(t, enq.events)
}
