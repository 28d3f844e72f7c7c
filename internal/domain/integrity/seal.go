package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"paystub/internal/domain/payroll"
	"paystub/internal/platform/apperr"
)

const sealDomain = "paystub-seal/v1"

// Record is the verification metadata minted once per pay record. It is
// never re-minted for a re-render of the same record.
type Record struct {
	ID          ID        `json:"verificationId" csv:"verification_id"`
	Fingerprint string    `json:"fingerprint" csv:"fingerprint"`
	Seal        string    `json:"seal" csv:"seal"`
	KeyID       string    `json:"keyId" csv:"key_id"`
	IssuedAt    time.Time `json:"issuedAt" csv:"issued_at"`
	Issuer      string    `json:"issuer,omitempty" csv:"issuer"`
}

// KeyProvider hands out MAC keys for the duration of a callback. Keys must
// not be retained or logged by fn.
type KeyProvider interface {
	CurrentKeyID() string
	WithKey(keyID string, fn func(key []byte) error) error
}

type Sealer struct {
	keys   KeyProvider
	ids    *Generator
	issuer string
}

func NewSealer(keys KeyProvider, ids *Generator, issuer string) *Sealer {
	if ids == nil {
		ids = NewGenerator()
	}
	return &Sealer{keys: keys, ids: ids, issuer: issuer}
}

// Seal fingerprints the record, mints an ID and MACs both.
func (s *Sealer) Seal(r payroll.PayRecord) (Record, error) {
	const op = "integrity.seal"
	if err := requireFields(r); err != nil {
		return Record{}, apperr.New(apperr.KindInvalidInput, op, err)
	}
	if err := r.Check(); err != nil {
		return Record{}, err
	}
	if s.keys == nil || s.keys.CurrentKeyID() == "" {
		return Record{}, apperr.New(apperr.KindConfiguration, op, ErrNoKey)
	}
	id, err := s.ids.New()
	if err != nil {
		return Record{}, apperr.New(apperr.KindConfiguration, op, err)
	}
	rec := Record{
		ID:          id,
		Fingerprint: Fingerprint(r),
		KeyID:       s.keys.CurrentKeyID(),
		IssuedAt:    id.Time(),
		Issuer:      s.issuer,
	}
	seal, err := s.mac(rec.KeyID, rec.Fingerprint, rec.ID)
	if err != nil {
		return Record{}, apperr.New(apperr.KindConfiguration, op, err)
	}
	rec.Seal = seal
	return rec, nil
}

func (s *Sealer) mac(keyID, fingerprint string, id ID) (string, error) {
	if s.keys == nil {
		return "", ErrNoKey
	}
	var out string
	err := s.keys.WithKey(keyID, func(key []byte) error {
		out = computeSeal(key, fingerprint, id)
		return nil
	})
	return out, err
}

func computeSeal(key []byte, fingerprint string, id ID) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(sealDomain))
	mac.Write([]byte{0})
	mac.Write([]byte(fingerprint))
	mac.Write([]byte{0})
	mac.Write([]byte(id.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verdict is the outcome of checking a record against its verification
// metadata.
type Verdict struct {
	Valid            bool   `json:"valid"`
	FingerprintMatch bool   `json:"fingerprintMatch"`
	SealMatch        bool   `json:"sealMatch"`
	Fingerprint      string `json:"fingerprint"`
}

// Verify recomputes fingerprint and seal and compares both in constant time.
// A mismatch is a verdict, not an error; errors mean the key is unavailable.
func (s *Sealer) Verify(r payroll.PayRecord, rec Record) (Verdict, error) {
	fingerprint := Fingerprint(r)
	v := Verdict{Fingerprint: fingerprint}
	v.FingerprintMatch = equalHex(fingerprint, rec.Fingerprint)
	expected, err := s.mac(rec.KeyID, rec.Fingerprint, rec.ID)
	if err != nil {
		return Verdict{}, apperr.New(apperr.KindConfiguration, "integrity.verify", err)
	}
	v.SealMatch = equalHex(expected, rec.Seal)
	v.Valid = v.FingerprintMatch && v.SealMatch
	return v, nil
}

// VerifyStamp checks a seal read from a document against a claimed
// fingerprint and ID without the pay record itself.
func (s *Sealer) VerifyStamp(rec Record) (bool, error) {
	expected, err := s.mac(rec.KeyID, rec.Fingerprint, rec.ID)
	if err != nil {
		return false, apperr.New(apperr.KindConfiguration, "integrity.verify", err)
	}
	return equalHex(expected, rec.Seal), nil
}

func equalHex(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Unchanged reports whether the record still fingerprints to rec, which a
// re-render requires before reusing rec. A changed record needs a new seal.
func Unchanged(r payroll.PayRecord, rec Record) error {
	if !equalHex(Fingerprint(r), rec.Fingerprint) {
		return apperr.New(apperr.KindInvalidInput, "integrity.rerender", ErrFingerprintDrift)
	}
	return nil
}

func requireFields(r payroll.PayRecord) error {
	switch {
	case r.Employee.ID == "", r.Employee.Name == "", r.Company.Name == "":
		return ErrIncompleteRecord
	case r.PayDate.IsZero(), r.PeriodStart.IsZero(), r.PeriodEnd.IsZero():
		return ErrIncompleteRecord
	case len(r.Earnings) == 0, r.Totals.AmountInWords == "":
		return ErrIncompleteRecord
	}
	return nil
}
