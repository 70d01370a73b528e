package privacy

import (
	"fmt"
	"strings"
)

// AccessLevel governs how much of a record is exposed after a privacy check.
type AccessLevel string

const (
	AccessFull    AccessLevel = "full"
	AccessLimited AccessLevel = "limited"
	AccessNone    AccessLevel = "none"
)

// RedactedToken replaces PHI values entirely when access level is none.
const RedactedToken = "***REDACTED***"

const limitedMaskToken = "***"

// PHI field taxonomy per HIPAA. The enumerations are fixed; masking applies
// to any record field whose name appears in one of these sets.
var (
	phiDirectIdentifiers = []string{
		"name", "ssn", "medical_record_number", "account_number",
		"certificate_number", "vehicle_identifier", "device_identifier",
		"url", "ip_address", "biometric_identifier", "photo",
		"email_address", "phone_number", "fax_number",
	}
	phiDates = []string{
		"date_of_birth", "admission_date", "discharge_date",
		"death_date", "service_date", "appointment_date",
	}
	phiGeographic = []string{
		"street_address", "city", "county", "zip_code", "geocode",
	}
	phiFinancial = []string{
		"insurance_id", "member_id", "policy_number",
		"account_number", "claim_number",
	}
)

var phiFields, phiFieldSet = buildPHIFields()

func buildPHIFields() ([]string, map[string]struct{}) {
	var fields []string
	set := make(map[string]struct{})
	for _, category := range [][]string{phiDirectIdentifiers, phiDates, phiGeographic, phiFinancial} {
		for _, field := range category {
			if _, ok := set[field]; ok {
				continue // account_number appears in two categories
			}
			set[field] = struct{}{}
			fields = append(fields, field)
		}
	}
	return fields, set
}

// AllPHIFields returns the full deduplicated PHI field list. This is what
// CheckAccess reports as masked for non-full access.
func AllPHIFields() []string {
	return append([]string{}, phiFields...)
}

// IsPHIField reports whether the field name is in the PHI taxonomy.
func IsPHIField(name string) bool {
	_, ok := phiFieldSet[name]
	return ok
}

// MaskPHI returns a copy of the record with PHI fields masked according to
// the access level. Full access is the identity. None replaces every PHI
// value with the redaction token. Limited keeps the first and last two
// characters of values longer than four characters, preserving length;
// shorter values become a three-character mask.
func MaskPHI(record map[string]any, level AccessLevel) map[string]any {
	if level == AccessFull {
		return record
	}
	masked := make(map[string]any, len(record))
	for key, value := range record {
		if !IsPHIField(key) {
			masked[key] = value
			continue
		}
		switch level {
		case AccessNone:
			masked[key] = RedactedToken
		case AccessLimited:
			masked[key] = maskLimited(fmt.Sprint(value))
		default:
			masked[key] = RedactedToken
		}
	}
	return masked
}

func maskLimited(value string) string {
	// Measured in characters, not bytes; byte slicing would split multibyte
	// values mid-rune.
	runes := []rune(value)
	if len(runes) > 4 {
		return string(runes[:2]) + strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-2:])
	}
	return limitedMaskToken
}
