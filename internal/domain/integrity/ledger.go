package integrity

import (
	"context"
	"sort"
	"sync"

	"paystub/internal/domain/money"
)

// Entry is a registered verification record with the identifying details a
// lookup service shows back to whoever scanned the document.
type Entry struct {
	Record
	EmployeeID   string      `json:"employeeId" csv:"employee_id"`
	EmployeeName string      `json:"employeeName" csv:"employee_name"`
	CompanyName  string      `json:"companyName" csv:"company_name"`
	PayDate      string      `json:"payDate" csv:"pay_date"`
	Net          money.Cents `json:"net" csv:"net"`
}

// Ledger stores issued verification records. Register must reject an ID
// that is already present.
type Ledger interface {
	Register(ctx context.Context, e Entry) error
	Lookup(ctx context.Context, id ID) (Entry, error)
	List(ctx context.Context, limit, offset int) ([]Entry, error)
}

// MemoryLedger is a process-local Ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[ID]Entry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: map[ID]Entry{}}
}

func (l *MemoryLedger) Register(_ context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[e.ID]; ok {
		return ErrDuplicateID
	}
	l.entries[e.ID] = e
	return nil
}

func (l *MemoryLedger) Lookup(_ context.Context, id ID) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// List returns entries in ID order, which is issue order.
func (l *MemoryLedger) List(_ context.Context, limit, offset int) ([]Entry, error) {
	l.mu.RLock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
