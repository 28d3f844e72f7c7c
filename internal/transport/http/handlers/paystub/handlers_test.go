package paystubhandler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"paystub/internal/domain/auth"
	"paystub/internal/domain/integrity"
	"paystub/internal/domain/jurisdiction"
	"paystub/internal/domain/payroll"
	"paystub/internal/domain/paystub"
	"paystub/internal/domain/render"
	"paystub/internal/domain/tax"
	"paystub/internal/domain/ytd"
	"paystub/internal/platform/crypto"
	"paystub/internal/platform/ledger"
	"paystub/internal/transport/http/middleware"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type recordedEvent struct {
	actor, action, entityID string
}

type memoryAudit struct {
	events []recordedEvent
}

func (m *memoryAudit) Record(_ context.Context, actorID, action, _, entityID, _, _ string, _, _ any) error {
	m.events = append(m.events, recordedEvent{actor: actorID, action: action, entityID: entityID})
	return nil
}

type fixture struct {
	router http.Handler
	ledger *ledger.Ledger
	audit  *memoryAudit
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	catalogue, err := jurisdiction.Default()
	if err != nil {
		t.Fatalf("catalogue: %v", err)
	}
	keys, err := crypto.NewKeyring(strings.Repeat("ab", 32), "k1")
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	pool, err := render.NewPool(render.PDFFactory(render.DefaultLayout()), render.PoolConfig{Size: 2})
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })
	store, err := ledger.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	policy, err := auth.NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}

	svc := paystub.NewService(
		payroll.NewService(tax.NewEngine(catalogue)),
		integrity.NewSealer(keys, nil, "Acme Payroll Services"),
		render.NewRenderer(pool, render.WithLookupHint("https://verify.example.com")),
		store,
	)
	recorder := &memoryAudit{}
	h := NewHandler(svc, store, middleware.NewMemoryIdempotency(), recorder, policy)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(asRoleFromHeader)
	h.RegisterRoutes(r)
	return fixture{router: r, ledger: store, audit: recorder}
}

// asRoleFromHeader authenticates as the role named in X-Test-Role.
func asRoleFromHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if role := r.Header.Get("X-Test-Role"); role != "" {
			r = r.WithContext(middleware.WithUser(r.Context(), auth.UserContext{UserID: "client-" + role, RoleName: role}))
		}
		next.ServeHTTP(w, r)
	})
}

func (f fixture) do(t *testing.T, role, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if dst != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func salaryInput() payroll.PayPeriodInput {
	return payroll.PayPeriodInput{
		Company:      payroll.Company{Name: "Lone Star Freight", Address: "9 Depot Rd, Austin, TX"},
		Employee:     payroll.Employee{ID: "E-7", Name: "Sam Ortiz", State: "TX", SSNLast4: "4321"},
		Jurisdiction: "US-TX",
		Filing:       tax.FilingProfile{Status: tax.Single, Frequency: tax.Monthly},
		PeriodStart:  payroll.NewDate(2025, time.November, 1),
		PeriodEnd:    payroll.NewDate(2025, time.November, 30),
		PayDate:      payroll.NewDate(2025, time.November, 30),
		Salary:       500000,
		CheckNumber:  "1001",
	}
}

func (f fixture) generate(t *testing.T) payroll.PayRecord {
	t.Helper()
	rec := f.do(t, auth.RoleIssuer, http.MethodPost, "/paystubs/generate", generatePayload{Input: salaryInput()}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out generateResponse
	decode(t, rec, &out)
	return out.PayRecord
}

func TestListThemes(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, auth.RoleVerifier, http.MethodGet, "/themes", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var swatches []map[string]string
	decode(t, rec, &swatches)
	if len(swatches) != 24 {
		t.Fatalf("expected 24 themes, got %d", len(swatches))
	}
	if swatches[0]["key"] == "" || !strings.HasPrefix(swatches[0]["primary"], "#") {
		t.Fatalf("unexpected swatch: %v", swatches[0])
	}
}

func TestGeneratePersistsSnapshot(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, auth.RoleIssuer, http.MethodPost, "/paystubs/generate", generatePayload{Input: salaryInput()}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out generateResponse
	decode(t, rec, &out)
	if !out.Persisted || out.YTD.Periods != 1 {
		t.Fatalf("expected persisted first period, got %+v", out.YTD)
	}
	if out.PayRecord.Totals.Gross != 500000 {
		t.Fatalf("unexpected gross %d", out.PayRecord.Totals.Gross)
	}

	stored, err := f.ledger.Latest(context.Background(), "E-7", 2025)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if stored.Periods != 1 || stored.Gross != 500000 {
		t.Fatalf("snapshot not stored: %+v", stored)
	}

	// the second period picks up where the first left off
	rec = f.do(t, auth.RoleIssuer, http.MethodPost, "/paystubs/generate", generatePayload{Input: salaryInput()}, nil)
	decode(t, rec, &out)
	if out.PayRecord.Totals.GrossYTD != 1000000 {
		t.Fatalf("expected gross ytd 1000000, got %d", out.PayRecord.Totals.GrossYTD)
	}
	if len(f.audit.events) != 2 || f.audit.events[0].action != "paystub.generate" {
		t.Fatalf("unexpected audit trail: %+v", f.audit.events)
	}
}

func TestGeneratePaddedEmployeeIDContinuesYTD(t *testing.T) {
	f := newFixture(t)
	f.generate(t)

	in := salaryInput()
	in.Employee.ID = "  E-7 "
	rec := f.do(t, auth.RoleIssuer, http.MethodPost, "/paystubs/generate", generatePayload{Input: in}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out generateResponse
	decode(t, rec, &out)
	if out.YTD.Periods != 2 || out.PayRecord.Totals.GrossYTD != 1000000 {
		t.Fatalf("expected second period on the stored totals, got %+v", out.YTD)
	}

	stored, err := f.ledger.Latest(context.Background(), "E-7", 2025)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if stored.Periods != 2 {
		t.Fatalf("expected 2 stored periods, got %d", stored.Periods)
	}
}

func TestGeneratePreviewDoesNotPersist(t *testing.T) {
	f := newFixture(t)
	prior := ytd.Open("E-7", 2025)
	rec := f.do(t, auth.RoleIssuer, http.MethodPost, "/paystubs/generate", generatePayload{Input: salaryInput(), PriorYTD: &prior}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out generateResponse
	decode(t, rec, &out)
	if out.Persisted {
		t.Fatal("preview must not persist")
	}
	stored, err := f.ledger.Latest(context.Background(), "E-7", 2025)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if stored.Periods != 0 {
		t.Fatalf("expected no stored periods, got %d", stored.Periods)
	}
}

func TestGenerateIdempotency(t *testing.T) {
	f := newFixture(t)
	headers := map[string]string{"Idempotency-Key": "run-2025-11"}
	first := f.do(t, auth.RoleIssuer, http.MethodPost, "/paystubs/generate", generatePayload{Input: salaryInput()}, headers)
	second := f.do(t, auth.RoleIssuer, http.MethodPost, "/paystubs/generate", generatePayload{Input: salaryInput()}, headers)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected 200s, got %d and %d", first.Code, second.Code)
	}
	var a, b generateResponse
	decode(t, first, &a)
	decode(t, second, &b)
	if a.YTD.Periods != 1 || b.YTD.Periods != 1 {
		t.Fatalf("replay advanced ytd: %d then %d", a.YTD.Periods, b.YTD.Periods)
	}

	changed := salaryInput()
	changed.Bonus = 1000
	conflict := f.do(t, auth.RoleIssuer, http.MethodPost, "/paystubs/generate", generatePayload{Input: changed}, headers)
	if conflict.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", conflict.Code)
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	in := salaryInput()
	in.Employee.ID = ""
	rec := f.do(t, auth.RoleIssuer, http.MethodPost, "/paystubs/generate", generatePayload{Input: in}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decode(t, rec, nil)
	if env.Error == nil || env.Error.Code != "validation_error" {
		t.Fatalf("unexpected error: %s", rec.Body.String())
	}

	unknown := f.do(t, auth.RoleIssuer, http.MethodPost, "/paystubs/generate", map[string]any{"input": salaryInput(), "extra": 1}, nil)
	if unknown.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown field to be rejected, got %d", unknown.Code)
	}
}

func TestPermissions(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		role   string
		method string
		path   string
		want   int
	}{
		{"anonymous", "", http.MethodGet, "/themes", http.StatusUnauthorized},
		{"verifier cannot generate", auth.RoleVerifier, http.MethodPost, "/paystubs/generate", http.StatusForbidden},
		{"issuer cannot export", auth.RoleIssuer, http.MethodGet, "/verifications/export", http.StatusForbidden},
		{"auditor cannot render", auth.RoleAuditor, http.MethodPost, "/paystubs/render", http.StatusForbidden},
		{"admin exports", auth.RoleAdmin, http.MethodGet, "/verifications/export", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, tc.role, tc.method, tc.path, nil, nil)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestRenderAndVerifyDocument(t *testing.T) {
	f := newFixture(t)
	record := f.generate(t)

	rec := f.do(t, auth.RoleIssuer, http.MethodPost, "/paystubs/render", renderPayload{PayRecord: record, Theme: "cherry_soda"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}
	id := rec.Header().Get("X-Verification-Id")
	if id == "" || rec.Header().Get("X-Seal") == "" {
		t.Fatal("missing verification headers")
	}
	doc := rec.Body.Bytes()
	if !bytes.HasPrefix(doc, []byte("%PDF")) {
		t.Fatal("body is not a PDF")
	}

	check := f.do(t, auth.RoleVerifier, http.MethodPost, "/paystubs/verify-document", verifyDocumentPayload{
		PayRecord: record,
		Document:  base64.StdEncoding.EncodeToString(doc),
	}, nil)
	if check.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", check.Code, check.Body.String())
	}
	var out struct {
		Verdict integrity.Verdict `json:"verdict"`
		Stamp   render.Stamp      `json:"stamp"`
	}
	decode(t, check, &out)
	if !out.Verdict.Valid || out.Stamp.ID.String() != id {
		t.Fatalf("unexpected verdict %+v for stamp %s", out.Verdict, out.Stamp.ID)
	}

	lookup := f.do(t, auth.RoleVerifier, http.MethodGet, "/paystubs/verifications/"+id, nil, nil)
	if lookup.Code != http.StatusOK {
		t.Fatalf("lookup: expected 200, got %d", lookup.Code)
	}
	var entry integrity.Entry
	decode(t, lookup, &entry)
	if entry.EmployeeID != "E-7" || entry.Net != record.Totals.Net {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestRenderRejectsUnknownTheme(t *testing.T) {
	f := newFixture(t)
	record := f.generate(t)
	rec := f.do(t, auth.RoleIssuer, http.MethodPost, "/paystubs/render", renderPayload{PayRecord: record, Theme: "ocean"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	all, err := f.ledger.List(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("nothing should be minted for an unknown theme, got %d", len(all))
	}
}

func TestRenderAll(t *testing.T) {
	f := newFixture(t)
	record := f.generate(t)
	rec := f.do(t, auth.RoleIssuer, http.MethodPost, "/paystubs/render-all", renderAllPayload{
		PayRecord: record,
		Themes:    []string{"cherry_soda", "tuesdays", "sylveon"},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out renderAllResponse
	decode(t, rec, &out)
	if out.Failed != 0 || len(out.Documents) != 3 {
		t.Fatalf("unexpected batch: failed=%d docs=%d", out.Failed, len(out.Documents))
	}
	for i, want := range []string{"cherry_soda", "tuesdays", "sylveon"} {
		if out.Documents[i].Theme != want || out.Documents[i].Document == "" {
			t.Fatalf("document %d: got theme %q", i, out.Documents[i].Theme)
		}
	}
	all, err := f.ledger.List(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].ID != out.Verification.ID {
		t.Fatalf("expected one verification record for the batch, got %d", len(all))
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	f := newFixture(t)
	record := f.generate(t)
	rendered := f.do(t, auth.RoleIssuer, http.MethodPost, "/paystubs/render", renderPayload{PayRecord: record, Theme: "tuesdays"}, nil)
	if rendered.Code != http.StatusOK {
		t.Fatalf("render: %d", rendered.Code)
	}
	entry, err := f.ledger.Lookup(context.Background(), mustParseID(t, rendered.Header().Get("X-Verification-Id")))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	tampered := record
	tampered.Totals.Net += 100
	rec := f.do(t, auth.RoleVerifier, http.MethodPost, "/paystubs/verify", verifyPayload{PayRecord: tampered, Verification: entry.Record}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var verdict integrity.Verdict
	decode(t, rec, &verdict)
	if verdict.Valid || verdict.FingerprintMatch || !verdict.SealMatch {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
}

func TestLookupNotFound(t *testing.T) {
	f := newFixture(t)
	id, err := integrity.NewGenerator().New()
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	rec := f.do(t, auth.RoleVerifier, http.MethodGet, "/paystubs/verifications/"+id.String(), nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	bad := f.do(t, auth.RoleVerifier, http.MethodGet, "/paystubs/verifications/not-an-id", nil, nil)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.Code)
	}
}

func TestExportVerifications(t *testing.T) {
	f := newFixture(t)
	record := f.generate(t)
	for _, key := range []string{"cherry_soda", "tuesdays"} {
		rec := f.do(t, auth.RoleIssuer, http.MethodPost, "/paystubs/render", renderPayload{PayRecord: record, Theme: key}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("render %s: %d", key, rec.Code)
		}
	}

	rec := f.do(t, auth.RoleAuditor, http.MethodGet, "/verifications/export", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and two rows, got %d", len(rows))
	}
	if rows[0][0] != "verification_id" {
		t.Fatalf("unexpected header %v", rows[0])
	}

	list := f.do(t, auth.RoleAuditor, http.MethodGet, "/verifications?limit=1", nil, nil)
	var entries []integrity.Entry
	decode(t, list, &entries)
	if len(entries) != 1 {
		t.Fatalf("expected one entry page, got %d", len(entries))
	}
}

func mustParseID(t *testing.T, raw string) integrity.ID {
	t.Helper()
	id, err := integrity.ParseID(raw)
	if err != nil {
		t.Fatalf("parse id %q: %v", raw, err)
	}
	return id
}
