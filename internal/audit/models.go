package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Action classifies the access decision an entry records.
type Action string

const (
	ActionAccessGranted Action = "ACCESS_GRANTED"
	ActionAccessDenied  Action = "ACCESS_DENIED"
)

// Entry is one append-only audit record. Exactly one entry is written per
// access-gate decision, allow or deny; entries are never mutated or deleted.
type Entry struct {
	LogID        string
	Timestamp    time.Time
	UserID       string
	Action       Action
	ResourceType string
	ResourceID   string
	PatientID    string
	AccessLevel  string
	IPAddress    string
	Success      bool
	Details      map[string]any
}

// NewLogID derives a deterministic id from the decision coordinates, 16 hex
// characters uppercased. Determinism aids idempotent retries at callers, but
// Append never deduplicates: repeated checks of the same resource each get
// their own entry.
func NewLogID(userID string, action Action, resourceID string, ts time.Time) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%s:%s:%s", userID, action, resourceID, ts.Format(time.RFC3339Nano)))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:16])
}
