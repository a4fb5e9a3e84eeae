// Package audit implements the desk's tamper-evident event log: an
// append-only chain where every entry's SHA-256 hash covers its own fields
// plus the previous entry's hash, rooted at a fixed genesis sentinel.
// Entries are never updated or deleted once written.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/otcdesk/desk-engine/internal/model"
)

// GenesisHash seeds the chain before any entry exists.
const GenesisHash = "GENESIS"

// Well-known event types recorded by the desk core.
const (
	EventRFQQuoted         = "rfq.quoted"
	EventRFQExpired        = "rfq.expired"
	EventTradeExecuted     = "trade.executed"
	EventSoftBreach        = "risk.soft_breach"
	EventOverrideRequested = "risk.override_requested"
)

// ErrChainBroken is returned by Verify when a recomputed hash does not
// match the stored one.
var ErrChainBroken = errors.New("audit: hash chain broken")

// ComputeHash returns the hex SHA-256 digest of the canonical encoding of
// an entry's fields plus the previous hash. The canonical form is JSON with
// lexicographically sorted keys (Go marshals map keys sorted), so the hash
// is a deterministic function of the inputs.
func ComputeHash(eventType, entityType, entityID, actor string, metadata map[string]any, previousHash string) (string, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	// The canonical key for the acting identity is user_id, fixed for the
	// life of the chain; renaming it would break every recorded hash.
	payload := map[string]any{
		"event_type":    eventType,
		"entity_type":   entityType,
		"entity_id":     entityID,
		"user_id":       actor,
		"metadata":      metadata,
		"previous_hash": previousHash,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("audit: encode payload: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// EntryHash recomputes the hash for a stored entry given its predecessor's
// hash.
func EntryHash(e model.AuditEntry, previousHash string) (string, error) {
	return ComputeHash(e.EventType, e.EntityType, e.EntityID, e.Actor, e.Metadata, previousHash)
}

// ChainStore is the slice of the persistence layer the audit log appends
// through. LastAuditEntry returns (nil, nil) on an empty chain.
type ChainStore interface {
	LastAuditEntry(ctx context.Context) (*model.AuditEntry, error)
	InsertAuditEntry(ctx context.Context, e *model.AuditEntry) error
}

// Append chains and persists one event: it reads the most recent entry's
// hash (genesis sentinel on an empty chain), hashes this event's canonical
// encoding over it, and inserts the entry. Callers needing atomicity with
// other writes pass the transaction-scoped store.
func Append(ctx context.Context, st ChainStore, eventType, entityType, entityID, actor string, metadata map[string]any, now time.Time) (*model.AuditEntry, error) {
	previous := GenesisHash
	last, err := st.LastAuditEntry(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: read chain head: %w", err)
	}
	if last != nil {
		previous = last.Hash
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	hash, err := ComputeHash(eventType, entityType, entityID, actor, metadata, previous)
	if err != nil {
		return nil, err
	}

	entry := &model.AuditEntry{
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		Metadata:   metadata,
		Hash:       hash,
		CreatedAt:  now,
	}
	if err := st.InsertAuditEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("audit: append entry: %w", err)
	}
	return entry, nil
}

// Verify walks entries in creation order, recomputing every hash from the
// entry's stored fields and the prior entry's stored hash. Any mismatch
// means tampering or out-of-order insertion and is reported with the
// offending entry's position. Not a runtime hot path — exposed for tests
// and operational checks.
func Verify(entries []model.AuditEntry) error {
	previous := GenesisHash
	for i, e := range entries {
		want, err := EntryHash(e, previous)
		if err != nil {
			return err
		}
		if e.Hash != want {
			return fmt.Errorf("%w: entry %d (id=%d, event=%s)", ErrChainBroken, i, e.ID, e.EventType)
		}
		previous = e.Hash
	}
	return nil
}
