package integrity

import (
	"strings"
)

const (
	payloadPrefix     = "PSV1"
	fingerprintPrefix = 16
)

// Payload is what the scannable code carries: enough for a lookup service to
// find the record and spot a mismatched document at a glance.
type Payload struct {
	ID                ID
	FingerprintPrefix string
	LookupHint        string
}

// PayloadFor builds the scan payload. hint is the issuer's verification URL
// or, when none is configured, the issuer name.
func PayloadFor(rec Record, hint string) Payload {
	prefix := rec.Fingerprint
	if len(prefix) > fingerprintPrefix {
		prefix = prefix[:fingerprintPrefix]
	}
	return Payload{ID: rec.ID, FingerprintPrefix: prefix, LookupHint: strings.TrimSpace(hint)}
}

// String encodes as PSV1:<id>:<fingerprint prefix>:<hint>. The hint may
// itself contain colons and is always last.
func (p Payload) String() string {
	return payloadPrefix + ":" + p.ID.String() + ":" + p.FingerprintPrefix + ":" + p.LookupHint
}

func ParsePayload(raw string) (Payload, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 4)
	if len(parts) != 4 || parts[0] != payloadPrefix {
		return Payload{}, ErrInvalidPayload
	}
	id, err := ParseID(parts[1])
	if err != nil {
		return Payload{}, ErrInvalidPayload
	}
	if len(parts[2]) != fingerprintPrefix {
		return Payload{}, ErrInvalidPayload
	}
	return Payload{ID: id, FingerprintPrefix: strings.ToLower(parts[2]), LookupHint: parts[3]}, nil
}

// Matches reports whether the payload was produced for rec.
func (p Payload) Matches(rec Record) bool {
	return p.ID == rec.ID && strings.HasPrefix(rec.Fingerprint, p.FingerprintPrefix)
}
