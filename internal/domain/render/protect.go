package render

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"paystub/internal/platform/apperr"
)

// Protector locks documents with an owner password. They open without a
// password but only allow printing.
type Protector struct {
	ownerPassword string
}

func NewProtector(ownerPassword string) *Protector {
	if ownerPassword == "" {
		return nil
	}
	return &Protector{ownerPassword: ownerPassword}
}

func (p *Protector) config() *model.Configuration {
	conf := model.NewAESConfiguration("", p.ownerPassword, 256)
	conf.Permissions = model.PermissionsPrint
	return conf
}

func (p *Protector) Protect(doc []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Encrypt(bytes.NewReader(doc), &out, p.config()); err != nil {
		return nil, apperr.Transient("render.protect", fmt.Errorf("lock document: %w", err))
	}
	return out.Bytes(), nil
}
