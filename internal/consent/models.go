package consent

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a consent record. Records transition to
// Expired lazily on read and to Revoked explicitly; they are never deleted.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
	StatusPending Status = "pending"
)

// ScopeFullAccess grants unmasked access to patient data. Any other scope
// combination yields limited access with PHI masking.
const ScopeFullAccess = "full_access"

// Record captures a patient's consent decision for a specific organization
// and purpose. At most one Active record per (patient, org, purpose) triple
// is meaningful; granting a new one supersedes the prior.
type Record struct {
	ConsentID      string
	PatientID      string
	OrganizationID string
	Purpose        string
	Status         Status
	GrantedAt      time.Time
	ExpiresAt      *time.Time
	Scope          []string
}

// NewConsentID derives a consent id from the triple and grant time, 16 hex
// characters uppercased, matching the id format used across the system.
func NewConsentID(patientID, organizationID string, grantedAt time.Time) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%s:%s", patientID, organizationID, grantedAt.Format(time.RFC3339Nano)))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:16])
}

// ExpiredAt reports whether the record's expiry has passed. Records without
// an expiry never expire.
func (r *Record) ExpiredAt(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// CoversScope reports whether every requested capability is present in the
// record's scope. Partial coverage denies the whole request.
func (r *Record) CoversScope(requested []string) bool {
	granted := make(map[string]struct{}, len(r.Scope))
	for _, s := range r.Scope {
		granted[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}
