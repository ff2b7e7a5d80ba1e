package attendance

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendo/internal/queue"
	"attendo/internal/store"
)

func markedMessage(t *testing.T, rec Record) queue.Message {
	t.Helper()
	body, err := json.Marshal(rec)
	require.NoError(t, err)
	return queue.Message{Type: MarkedEvent, Body: body}
}

func TestAuditor_Handle(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	a := NewAuditor(kv, time.UTC, nil)
	a.now = func() time.Time { return now.Add(time.Second) }

	rec := Record{ID: "r1", UserID: "u1", Timestamp: now, Type: CheckIn}
	require.NoError(t, a.Handle(ctx, markedMessage(t, rec)))
	// redelivery is a no-op
	require.NoError(t, a.Handle(ctx, markedMessage(t, rec)))
	require.NoError(t, a.Handle(ctx, markedMessage(t, Record{ID: "r0", UserID: "u2", Timestamp: now.AddDate(0, 0, -1), Type: CheckOut})))

	entries, err := a.Entries(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []AuditEntry{{RecordID: "r1", UserID: "u1", Type: CheckIn, Timestamp: now, ReceivedAt: now.Add(time.Second)}}, entries)

	days, err := a.Days(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-14", "2026-10-15"}, days)

	empty, err := a.Entries(ctx, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAuditor_IgnoresAndRejects(t *testing.T) {
	ctx := context.Background()
	a := NewAuditor(store.NewMemory(), time.UTC, nil)

	assert.NoError(t, a.Handle(ctx, queue.Message{Type: "something.else", Body: []byte("??")}))
	assert.Error(t, a.Handle(ctx, queue.Message{Type: MarkedEvent, Body: []byte("not json")}))
	assert.Error(t, a.Handle(ctx, queue.Message{Type: MarkedEvent, Body: []byte(`{"id":"r1"}`)}))
}

func TestAuditor_RunConsumesQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := store.NewMemory()
	q := queue.NewInMemory(4)
	svc := newTestService(kv, WithQueue(q))
	a := NewAuditor(kv, time.UTC, nil)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, q) }()

	rec, err := svc.Mark(ctx, boundStudent(), at(office), CheckIn, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		entries, err := a.Entries(ctx, now)
		return err == nil && len(entries) == 1 && entries[0].RecordID == rec.ID
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("auditor did not stop")
	}
}
