package attendance

import (
	"context"
	"encoding/json"
	"errors"

	"attendo/internal/store"
)

// LedgerKey holds the full record list as a JSON array.
const LedgerKey = "attendance-ledger"

// Ledger persists the append-only record list.
type Ledger struct {
	kv store.KV
}

// NewLedger creates a ledger over kv.
func NewLedger(kv store.KV) *Ledger {
	return &Ledger{kv: kv}
}

// Append adds rec at the end of the ledger in one atomic read-modify-write.
func (l *Ledger) Append(ctx context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	err := l.kv.Update(ctx, LedgerKey, func(current []byte) ([]byte, error) {
		records, err := decodeRecords(current)
		if err != nil {
			return nil, err
		}
		return json.Marshal(append(records, rec))
	})
	return store.Fail("append attendance record", err)
}

// All returns every record in insertion order.
func (l *Ledger) All(ctx context.Context) ([]Record, error) {
	raw, err := l.kv.Get(ctx, LedgerKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Fail("load attendance ledger", err)
	}
	records, err := decodeRecords(raw)
	if err != nil {
		return nil, store.Fail("decode attendance ledger", err)
	}
	return records, nil
}
