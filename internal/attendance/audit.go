package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"attendo/internal/logging"
	"attendo/internal/queue"
	"attendo/internal/store"
)

// AuditKeyPrefix prefixes the per-day audit trail keys (audit:YYYY-MM-DD).
const AuditKeyPrefix = "audit:"

// AuditEntry is a worker-side note that a record was accepted.
type AuditEntry struct {
	RecordID   string    `json:"record_id"`
	UserID     string    `json:"user_id"`
	Type       Type      `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"received_at"`
}

// Auditor turns MarkedEvent messages into a per-day audit trail.
type Auditor struct {
	kv     store.KV
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// NewAuditor creates an auditor writing to kv, bucketing days in loc.
func NewAuditor(kv store.KV, loc *time.Location, logger *zap.Logger) *Auditor {
	if loc == nil {
		loc = time.Local
	}
	return &Auditor{kv: kv, loc: loc, now: time.Now, logger: logging.OrNop(logger)}
}

// Handle appends the record carried by msg to its day's trail. Other message types are ignored.
// Redelivered records are not duplicated.
func (a *Auditor) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != MarkedEvent {
		return nil
	}
	var rec Record
	if err := json.Unmarshal(msg.Body, &rec); err != nil {
		return fmt.Errorf("decode marked event: %w", err)
	}
	if err := rec.validate(); err != nil {
		return fmt.Errorf("decode marked event: %w", err)
	}

	entry := AuditEntry{
		RecordID:   rec.ID,
		UserID:     rec.UserID,
		Type:       rec.Type,
		Timestamp:  rec.Timestamp,
		ReceivedAt: a.now().UTC(),
	}
	key := AuditKeyPrefix + dayKey(rec.Timestamp, a.loc)
	err := a.kv.Update(ctx, key, func(current []byte) ([]byte, error) {
		var entries []AuditEntry
		if len(current) > 0 {
			if err := json.Unmarshal(current, &entries); err != nil {
				return nil, err
			}
		}
		for _, e := range entries {
			if e.RecordID == entry.RecordID {
				return current, nil
			}
		}
		return json.Marshal(append(entries, entry))
	})
	if err != nil {
		return store.Fail("append audit entry", err)
	}
	a.logger.Debug("audit entry stored", zap.String("record_id", rec.ID), zap.String("key", key))
	return nil
}

// Run consumes q until ctx ends, logging messages that cannot be handled.
func (a *Auditor) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	for msg := range messages {
		if err := a.Handle(ctx, msg); err != nil {
			a.logger.Warn("audit message dropped", zap.String("type", msg.Type), zap.Error(err))
		}
	}
	return nil
}

// Entries returns the trail for the calendar day of day.
func (a *Auditor) Entries(ctx context.Context, day time.Time) ([]AuditEntry, error) {
	raw, err := a.kv.Get(ctx, AuditKeyPrefix+dayKey(day, a.loc))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Fail("load audit trail", err)
	}
	var entries []AuditEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, store.Fail("decode audit trail", err)
	}
	return entries, nil
}

// Days lists the dates (YYYY-MM-DD) that have an audit trail.
func (a *Auditor) Days(ctx context.Context) ([]string, error) {
	keys, err := a.kv.List(ctx, AuditKeyPrefix)
	if err != nil {
		return nil, store.Fail("list audit trails", err)
	}
	days := make([]string, 0, len(keys))
	for _, k := range keys {
		days = append(days, strings.TrimPrefix(k, AuditKeyPrefix))
	}
	return days, nil
}
