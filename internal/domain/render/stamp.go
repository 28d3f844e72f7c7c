package render

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"paystub/internal/domain/integrity"
	"paystub/internal/platform/apperr"
)

const stampVersion = "paystub-stamp/v1"

// Stamp is the verification metadata written into a document's info
// dictionary so it can be checked without the original pay record.
type Stamp struct {
	ID          integrity.ID `json:"verificationId"`
	Fingerprint string       `json:"fingerprint"`
	Seal        string       `json:"seal"`
	KeyID       string       `json:"keyId"`
	IssuedAt    time.Time    `json:"issuedAt"`
	Issuer      string       `json:"issuer,omitempty"`
	Payload     string       `json:"payload,omitempty"`
	Pages       int          `json:"pages,omitempty"`
}

func stampFor(job Job) Stamp {
	v := job.Verification
	return Stamp{
		ID:          v.ID,
		Fingerprint: v.Fingerprint,
		Seal:        v.Seal,
		KeyID:       v.KeyID,
		IssuedAt:    v.IssuedAt,
		Issuer:      v.Issuer,
		Payload:     job.Payload.String(),
	}
}

func (s Stamp) keywords() string {
	return fmt.Sprintf("%s id=%s fp=%s seal=%s key=%s issued=%s",
		stampVersion, s.ID, s.Fingerprint, s.Seal, s.KeyID, s.IssuedAt.UTC().Format(time.RFC3339Nano))
}

func parseKeywords(raw string) (Stamp, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 || fields[0] != stampVersion {
		return Stamp{}, ErrNoStamp
	}
	var s Stamp
	for _, f := range fields[1:] {
		name, value, ok := strings.Cut(f, "=")
		if !ok {
			return Stamp{}, fmt.Errorf("%w: field %q", ErrNoStamp, f)
		}
		switch name {
		case "id":
			id, err := integrity.ParseID(value)
			if err != nil {
				return Stamp{}, err
			}
			s.ID = id
		case "fp":
			s.Fingerprint = value
		case "seal":
			s.Seal = value
		case "key":
			s.KeyID = value
		case "issued":
			t, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return Stamp{}, fmt.Errorf("%w: issued %q", ErrNoStamp, value)
			}
			s.IssuedAt = t
		}
	}
	if s.ID.IsZero() || s.Fingerprint == "" || s.Seal == "" || s.KeyID == "" {
		return Stamp{}, ErrNoStamp
	}
	return s, nil
}

// Record is the verification record the stamp claims.
func (s Stamp) Record() integrity.Record {
	return integrity.Record{
		ID:          s.ID,
		Fingerprint: s.Fingerprint,
		Seal:        s.Seal,
		KeyID:       s.KeyID,
		IssuedAt:    s.IssuedAt,
		Issuer:      s.Issuer,
	}
}

// Inspect reads the stamp back out of a rendered document. ownerPassword is
// only needed for permission-locked documents.
func Inspect(doc []byte, ownerPassword string) (Stamp, error) {
	const op = "render.inspect"
	if ownerPassword != "" && bytes.Contains(doc, []byte("/Encrypt")) {
		var plain bytes.Buffer
		conf := model.NewAESConfiguration("", ownerPassword, 256)
		if err := api.Decrypt(bytes.NewReader(doc), &plain, conf); err != nil {
			return Stamp{}, apperr.New(apperr.KindInvalidInput, op, fmt.Errorf("decrypt document: %w", err))
		}
		doc = plain.Bytes()
	}
	r, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return Stamp{}, apperr.New(apperr.KindInvalidInput, op, fmt.Errorf("read document: %w", err))
	}
	info := r.Trailer().Key("Info")
	s, err := parseKeywords(info.Key("Keywords").Text())
	if err != nil {
		return Stamp{}, apperr.New(apperr.KindInvalidInput, op, err)
	}
	s.Issuer = info.Key("Author").Text()
	s.Payload = info.Key("Subject").Text()
	s.Pages = r.NumPage()
	return s, nil
}
