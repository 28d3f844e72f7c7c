package payroll

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day without time of day, encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Date{}, nil
	}
	for _, layout := range []string{dateLayout, "01/02/2006", time.RFC3339} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return NewDate(parsed.Year(), parsed.Month(), parsed.Day()), nil
		}
	}
	return Date{}, fmt.Errorf("invalid date %q", raw)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// Display is the printed form, e.g. "03/14/2025".
func (d Date) Display() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("01/02/2006")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalCSV() (string, error) {
	return d.String(), nil
}

func (d *Date) UnmarshalCSV(raw string) error {
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
