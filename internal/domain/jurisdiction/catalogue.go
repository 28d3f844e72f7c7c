// Package jurisdiction loads effective-dated withholding tables and serves
// them to the tax engine.
package jurisdiction

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"paystub/internal/domain/tax"
)

const fileVersion = 1

//go:embed profiles/*.yaml
var builtin embed.FS

type federalVersion struct {
	from  time.Time
	rules tax.Federal
}

type stateVersion struct {
	from          time.Time
	federalMethod tax.FederalMethod
	rules         tax.State
	locals        []tax.LocalRule
}

type entry struct {
	code     string
	name     string
	state    string
	versions []stateVersion
}

// Catalogue is an immutable set of jurisdiction profiles. It implements
// tax.ProfileSource.
type Catalogue struct {
	federal       []federalVersion
	jurisdictions map[string]entry
}

var defaultCatalogue = sync.OnceValues(func() (*Catalogue, error) {
	raw, err := builtin.ReadFile("profiles/us.yaml")
	if err != nil {
		return nil, err
	}
	return Load(bytes.NewReader(raw))
})

// Default returns the catalogue compiled into the binary.
func Default() (*Catalogue, error) {
	return defaultCatalogue()
}

func LoadFile(path string) (*Catalogue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open jurisdiction profiles: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates a profile document. Every combination of
// federal and jurisdiction versions is checked so a bad table fails here
// rather than on the first pay record that reaches it.
func Load(r io.Reader) (*Catalogue, error) {
	var doc catalogueFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jurisdiction profiles: %w", err)
	}
	if doc.Version != fileVersion {
		return nil, fmt.Errorf("unsupported jurisdiction profile version %d", doc.Version)
	}
	if len(doc.Federal) == 0 {
		return nil, fmt.Errorf("jurisdiction profiles define no federal rules")
	}

	c := &Catalogue{jurisdictions: map[string]entry{}}
	for i, f := range doc.Federal {
		from, rules, err := f.build()
		if err != nil {
			return nil, fmt.Errorf("federal[%d]: %w", i, err)
		}
		c.federal = append(c.federal, federalVersion{from: from, rules: rules})
	}
	sort.Slice(c.federal, func(i, j int) bool { return c.federal[i].from.Before(c.federal[j].from) })

	for _, j := range doc.Jurisdictions {
		code := normalizeCode(j.Code)
		if code == "" {
			return nil, fmt.Errorf("jurisdiction without code")
		}
		if _, dup := c.jurisdictions[code]; dup {
			return nil, fmt.Errorf("duplicate jurisdiction %s", code)
		}
		e := entry{code: code, name: j.Name, state: strings.ToUpper(strings.TrimSpace(j.State))}
		for i, v := range j.Versions {
			built, err := v.build()
			if err != nil {
				return nil, fmt.Errorf("%s versions[%d]: %w", code, i, err)
			}
			e.versions = append(e.versions, built)
		}
		if len(e.versions) == 0 {
			return nil, fmt.Errorf("%s has no versions", code)
		}
		sort.Slice(e.versions, func(a, b int) bool { return e.versions[a].from.Before(e.versions[b].from) })
		c.jurisdictions[code] = e
	}

	for _, e := range c.jurisdictions {
		for _, v := range e.versions {
			for _, f := range c.federal {
				p := e.profile(f, v)
				if err := p.Validate(); err != nil {
					return nil, err
				}
			}
		}
	}
	return c, nil
}

func (v versionFile) build() (stateVersion, error) {
	from, err := parseDate(v.EffectiveFrom)
	if err != nil {
		return stateVersion{}, err
	}
	out := stateVersion{from: from, federalMethod: tax.FederalMethod(strings.ToLower(strings.TrimSpace(v.FederalMethod)))}
	if out.rules, err = v.State.build(); err != nil {
		return out, fmt.Errorf("state: %w", err)
	}
	if out.rules.Disability, err = v.Disability.build(); err != nil {
		return out, fmt.Errorf("disability: %w", err)
	}
	for _, l := range v.Locals {
		rate, err := parseRate(l.Rate)
		if err != nil {
			return out, fmt.Errorf("local %s: %w", l.Code, err)
		}
		rule := tax.LocalRule{Code: normalizeCode(l.Code), Name: l.Name, Rate: rate}
		if strings.TrimSpace(l.When) != "" {
			cond, err := compileCondition(l.When)
			if err != nil {
				return out, fmt.Errorf("local %s: %w", l.Code, err)
			}
			rule.Condition = cond
		}
		out.locals = append(out.locals, rule)
	}
	return out, nil
}

// Profile returns the rules for code in force on the given date: the latest
// jurisdiction version and the latest federal version not after it.
func (c *Catalogue) Profile(code string, on time.Time) (tax.Profile, error) {
	e, ok := c.jurisdictions[normalizeCode(code)]
	if !ok {
		return tax.Profile{}, fmt.Errorf("%w: %q", tax.ErrUnknownJurisdiction, code)
	}
	day := on.UTC().Truncate(24 * time.Hour)

	var version *stateVersion
	for i := range e.versions {
		if !e.versions[i].from.After(day) {
			version = &e.versions[i]
		}
	}
	var federal *federalVersion
	for i := range c.federal {
		if !c.federal[i].from.After(day) {
			federal = &c.federal[i]
		}
	}
	if version == nil || federal == nil {
		return tax.Profile{}, fmt.Errorf("%w: %s on %s", tax.ErrNoEffectiveProfile, e.code, day.Format("2006-01-02"))
	}
	return e.profile(*federal, *version), nil
}

func (e entry) profile(f federalVersion, v stateVersion) tax.Profile {
	federal := f.rules
	if v.federalMethod != "" {
		federal.Method = v.federalMethod
	}
	from := v.from
	if f.from.After(from) {
		from = f.from
	}
	return tax.Profile{
		Code:          e.code,
		Name:          e.name,
		State:         e.state,
		EffectiveFrom: from,
		Federal:       federal,
		StateRules:    v.rules,
		Locals:        v.locals,
	}
}

// Codes lists the known jurisdiction codes in sorted order.
func (c *Catalogue) Codes() []string {
	out := make([]string, 0, len(c.jurisdictions))
	for code := range c.jurisdictions {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Name returns the display name of a jurisdiction, or "" when unknown.
func (c *Catalogue) Name(code string) string {
	return c.jurisdictions[normalizeCode(code)].name
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
