package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/otcdesk/desk-engine/internal/model"
)

// chainRecorder is a minimal in-memory ChainStore.
type chainRecorder struct {
	entries []model.AuditEntry
}

func (r *chainRecorder) LastAuditEntry(_ context.Context) (*model.AuditEntry, error) {
	if len(r.entries) == 0 {
		return nil, nil
	}
	last := r.entries[len(r.entries)-1]
	return &last, nil
}

func (r *chainRecorder) InsertAuditEntry(_ context.Context, e *model.AuditEntry) error {
	e.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, *e)
	return nil
}

func appendN(t *testing.T, rec *chainRecorder, n int) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		_, err := Append(ctx, rec, EventTradeExecuted, "trade", "t-1", "trader",
			map[string]any{"seq": i, "price": "52062.50"}, now)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	meta := map[string]any{"size": "100", "price": "52000"}
	h1, err := ComputeHash(EventRFQQuoted, "rfq", "abc", "trader", meta, GenesisHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, _ := ComputeHash(EventRFQQuoted, "rfq", "abc", "trader", meta, GenesisHash)
	if h1 != h2 {
		t.Errorf("hash not deterministic: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}

// The canonical form is sorted-key JSON with the acting identity under
// user_id. Recorded hashes depend on this exact encoding.
func TestComputeHash_CanonicalEncoding(t *testing.T) {
	got, err := ComputeHash(EventRFQQuoted, "rfq", "abc", "trader", map[string]any{"size": "100"}, GenesisHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	canonical := `{"entity_id":"abc","entity_type":"rfq","event_type":"rfq.quoted",` +
		`"metadata":{"size":"100"},"previous_hash":"GENESIS","user_id":"trader"}`
	sum := sha256.Sum256([]byte(canonical))
	if want := hex.EncodeToString(sum[:]); got != want {
		t.Errorf("hash = %s, want %s", got, want)
	}
}

func TestComputeHash_SensitiveToEveryField(t *testing.T) {
	base, _ := ComputeHash("e", "t", "1", "a", map[string]any{"k": "v"}, GenesisHash)

	variants := []struct {
		name string
		hash func() (string, error)
	}{
		{"event type", func() (string, error) { return ComputeHash("e2", "t", "1", "a", map[string]any{"k": "v"}, GenesisHash) }},
		{"entity type", func() (string, error) { return ComputeHash("e", "t2", "1", "a", map[string]any{"k": "v"}, GenesisHash) }},
		{"entity id", func() (string, error) { return ComputeHash("e", "t", "2", "a", map[string]any{"k": "v"}, GenesisHash) }},
		{"actor", func() (string, error) { return ComputeHash("e", "t", "1", "b", map[string]any{"k": "v"}, GenesisHash) }},
		{"metadata", func() (string, error) { return ComputeHash("e", "t", "1", "a", map[string]any{"k": "w"}, GenesisHash) }},
		{"previous hash", func() (string, error) { return ComputeHash("e", "t", "1", "a", map[string]any{"k": "v"}, "other") }},
	}

	for _, v := range variants {
		got, err := v.hash()
		if err != nil {
			t.Fatalf("%s: %v", v.name, err)
		}
		if got == base {
			t.Errorf("changing %s did not change the hash", v.name)
		}
	}
}

func TestAppend_ChainsFromGenesis(t *testing.T) {
	rec := &chainRecorder{}
	appendN(t, rec, 3)

	want, _ := EntryHash(rec.entries[0], GenesisHash)
	if rec.entries[0].Hash != want {
		t.Error("first entry must chain from the genesis sentinel")
	}
	for i := 1; i < len(rec.entries); i++ {
		want, _ := EntryHash(rec.entries[i], rec.entries[i-1].Hash)
		if rec.entries[i].Hash != want {
			t.Errorf("entry %d does not chain from its predecessor", i)
		}
	}
}

func TestVerify_CleanChain(t *testing.T) {
	rec := &chainRecorder{}
	appendN(t, rec, 5)

	if err := Verify(rec.entries); err != nil {
		t.Errorf("clean chain must verify: %v", err)
	}
	// Any prefix of a valid chain is itself valid.
	for i := 0; i <= len(rec.entries); i++ {
		if err := Verify(rec.entries[:i]); err != nil {
			t.Errorf("prefix of %d entries must verify: %v", i, err)
		}
	}
}

func TestVerify_DetectsTampering(t *testing.T) {
	rec := &chainRecorder{}
	appendN(t, rec, 5)

	tampered := make([]model.AuditEntry, len(rec.entries))
	copy(tampered, rec.entries)
	tampered[2].Metadata = map[string]any{"seq": 99, "price": "1.00"}

	err := Verify(tampered)
	if !errors.Is(err, ErrChainBroken) {
		t.Fatalf("expected ErrChainBroken, got %v", err)
	}
}

func TestVerify_DetectsReorderedEntries(t *testing.T) {
	rec := &chainRecorder{}
	appendN(t, rec, 4)

	reordered := make([]model.AuditEntry, len(rec.entries))
	copy(reordered, rec.entries)
	reordered[1], reordered[2] = reordered[2], reordered[1]

	if err := Verify(reordered); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("expected ErrChainBroken for reordered chain, got %v", err)
	}
}

func TestVerify_EmptyChain(t *testing.T) {
	if err := Verify(nil); err != nil {
		t.Errorf("empty chain must verify: %v", err)
	}
}
