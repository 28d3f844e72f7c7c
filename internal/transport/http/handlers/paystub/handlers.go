package paystubhandler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"

	"paystub/internal/domain/audit"
	"paystub/internal/domain/auth"
	"paystub/internal/domain/integrity"
	"paystub/internal/domain/payroll"
	"paystub/internal/domain/paystub"
	"paystub/internal/domain/theme"
	"paystub/internal/domain/ytd"
	"paystub/internal/transport/http/api"
	"paystub/internal/transport/http/middleware"
	"paystub/internal/transport/http/shared"
)

const (
	maxBatchThemes   = 64
	exportPageSize   = 500
	endpointGenerate = "/paystubs/generate"
)

type Handler struct {
	Service     *paystub.Service
	Snapshots   ytd.StoreAPI
	Idempotency middleware.IdempotencyKeys
	Audit       audit.Recorder
	Perms       middleware.PermissionStore
	// OwnerPassword opens protected documents handed back for verification.
	OwnerPassword string
}

func NewHandler(svc *paystub.Service, snapshots ytd.StoreAPI, idempotency middleware.IdempotencyKeys, recorder audit.Recorder, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: svc, Snapshots: snapshots, Idempotency: idempotency, Audit: recorder, Perms: perms}
}

type generatePayload struct {
	Input    payroll.PayPeriodInput `json:"input"`
	PriorYTD *ytd.Snapshot          `json:"priorYtd,omitempty"`
}

type generateResponse struct {
	PayRecord payroll.PayRecord `json:"payRecord"`
	YTD       ytd.Snapshot      `json:"ytd"`
	Persisted bool              `json:"persisted"`
}

type renderPayload struct {
	PayRecord payroll.PayRecord `json:"payRecord"`
	Theme     string            `json:"theme"`
}

type renderAllPayload struct {
	PayRecord payroll.PayRecord `json:"payRecord"`
	Themes    []string          `json:"themes"`
}

type renderedTheme struct {
	Theme    string `json:"theme"`
	Document string `json:"document,omitempty"`
	Error    string `json:"error,omitempty"`
}

type renderAllResponse struct {
	Verification integrity.Record `json:"verification"`
	Documents    []renderedTheme  `json:"documents"`
	Failed       int              `json:"failed"`
}

type verifyPayload struct {
	PayRecord    payroll.PayRecord `json:"payRecord"`
	Verification integrity.Record  `json:"verification"`
}

type verifyDocumentPayload struct {
	PayRecord payroll.PayRecord `json:"payRecord"`
	Document  string            `json:"document"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermThemesRead, h.Perms)).Get("/themes", h.handleListThemes)
	r.Route("/paystubs", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPaystubGenerate, h.Perms)).Post("/generate", h.handleGenerate)
		r.With(middleware.RequirePermission(auth.PermPaystubRender, h.Perms)).Post("/render", h.handleRender)
		r.With(middleware.RequirePermission(auth.PermPaystubRender, h.Perms)).Post("/render-all", h.handleRenderAll)
		r.With(middleware.RequirePermission(auth.PermPaystubVerify, h.Perms)).Post("/verify", h.handleVerify)
		r.With(middleware.RequirePermission(auth.PermPaystubVerify, h.Perms)).Post("/verify-document", h.handleVerifyDocument)
		r.With(middleware.RequirePermission(auth.PermPaystubVerify, h.Perms)).Get("/verifications/{verificationID}", h.handleLookup)
	})
	r.Route("/verifications", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermVerificationsExport, h.Perms)).Get("/", h.handleListVerifications)
		r.With(middleware.RequirePermission(auth.PermVerificationsExport, h.Perms)).Get("/export", h.handleExportVerifications)
	})
}

func (h *Handler) handleListThemes(w http.ResponseWriter, r *http.Request) {
	defs := theme.All()
	out := make([]theme.Swatch, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Swatch())
	}
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}

// handleGenerate computes one pay record. When the prior snapshot comes
// from the store the advanced snapshot is saved back; a caller-supplied
// priorYtd is a preview and nothing is persisted.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	idempotencyKey := r.Header.Get("Idempotency-Key")
	requestHash := middleware.RequestHash(body)
	if idempotencyKey != "" && h.Idempotency != nil {
		stored, found, err := h.Idempotency.Check(r.Context(), user.UserID, endpointGenerate, idempotencyKey, requestHash)
		if err != nil {
			if errors.Is(err, middleware.ErrIdempotencyConflict) {
				api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key reused with a different payload", reqID)
				return
			}
			slog.Error("idempotency check failed", "err", err)
			api.Fail(w, http.StatusInternalServerError, "idempotency_failed", "failed to check idempotency", reqID)
			return
		}
		if found {
			api.Success(w, json.RawMessage(stored), reqID)
			return
		}
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	var payload generatePayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	validator := shared.NewValidator()
	validator.Required("input.employee.id", payload.Input.Employee.ID, "employee id is required")
	if payload.Input.PayDate.IsZero() {
		validator.Add("input.payDate", "pay date is required")
	}
	if validator.Reject(w, reqID) {
		return
	}

	persist := payload.PriorYTD == nil && h.Snapshots != nil
	var prior ytd.Snapshot
	switch {
	case payload.PriorYTD != nil:
		prior = *payload.PriorYTD
	case h.Snapshots != nil:
		employeeID := strings.TrimSpace(payload.Input.Employee.ID)
		prior, err = h.Snapshots.Latest(r.Context(), employeeID, payload.Input.PayDate.Year())
		if err != nil {
			slog.Error("load ytd snapshot failed", "employeeId", employeeID, "err", err)
			api.Fail(w, http.StatusInternalServerError, "ytd_load_failed", "failed to load year-to-date totals", reqID)
			return
		}
	}

	record, next, err := h.Service.GeneratePayRecord(payload.Input, prior)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	if persist {
		if err := h.Snapshots.Save(r.Context(), next); err != nil {
			if errors.Is(err, ytd.ErrStaleSnapshot) {
				api.Fail(w, http.StatusConflict, "ytd_conflict", "year-to-date totals changed while generating; retry", reqID)
				return
			}
			slog.Error("save ytd snapshot failed", "employeeId", next.EmployeeID, "err", err)
			api.Fail(w, http.StatusInternalServerError, "ytd_save_failed", "failed to save year-to-date totals", reqID)
			return
		}
	}

	resp := generateResponse{PayRecord: record, YTD: next, Persisted: persist}
	h.record(r, user.UserID, audit.ActionGenerate, "pay_record", record.Employee.ID, nil, map[string]any{
		"payDate":   record.PayDate.String(),
		"net":       record.Totals.Net,
		"persisted": persist,
	})
	if idempotencyKey != "" && h.Idempotency != nil {
		encoded, err := json.Marshal(resp)
		if err == nil {
			if err := h.Idempotency.Save(r.Context(), user.UserID, endpointGenerate, idempotencyKey, requestHash, encoded); err != nil {
				slog.Warn("idempotency save failed", "err", err)
			}
		}
	}
	api.Success(w, resp, reqID)
}

func (h *Handler) handleRender(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload renderPayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	validator := shared.NewValidator()
	validator.Required("theme", payload.Theme, "theme is required")
	validator.Enum("theme", payload.Theme, theme.Keys(), "unknown theme")
	if validator.Reject(w, reqID) {
		return
	}

	sealed, err := h.Service.SealAndRender(r.Context(), payload.PayRecord, payload.Theme)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	h.record(r, actorID(r), audit.ActionRender, "verification", sealed.Verification.ID.String(), nil, map[string]any{
		"theme":      sealed.Theme,
		"employeeId": payload.PayRecord.Employee.ID,
	})

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="paystub-`+sealed.Verification.ID.String()+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(sealed.Document)))
	w.Header().Set("X-Verification-Id", sealed.Verification.ID.String())
	w.Header().Set("X-Fingerprint", sealed.Verification.Fingerprint)
	w.Header().Set("X-Seal", sealed.Verification.Seal)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(sealed.Document)
}

func (h *Handler) handleRenderAll(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload renderAllPayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	validator := shared.NewValidator()
	validator.Max("themes", len(payload.Themes), maxBatchThemes)
	for _, key := range payload.Themes {
		validator.Enum("themes", key, theme.Keys(), "unknown theme "+strconv.Quote(key))
	}
	if validator.Reject(w, reqID) {
		return
	}

	batch, err := h.Service.SealAndRenderAll(r.Context(), payload.PayRecord, payload.Themes)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	resp := renderAllResponse{Verification: batch.Verification, Failed: batch.Failed()}
	for _, res := range batch.Results {
		item := renderedTheme{Theme: res.Theme}
		if res.OK() {
			item.Document = base64.StdEncoding.EncodeToString(res.Document)
		} else {
			_, item.Error = api.StatusFor(res.Err)
		}
		resp.Documents = append(resp.Documents, item)
	}
	h.record(r, actorID(r), audit.ActionRender, "verification", batch.Verification.ID.String(), nil, map[string]any{
		"themes": len(batch.Results),
		"failed": resp.Failed,
	})
	api.Success(w, resp, reqID)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload verifyPayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	validator := shared.NewValidator()
	if payload.Verification.ID.IsZero() {
		validator.Add("verification.verificationId", "verification id is required")
	}
	validator.Required("verification.keyId", payload.Verification.KeyID, "key id is required")
	if validator.Reject(w, reqID) {
		return
	}

	verdict, err := h.Service.Verify(payload.PayRecord, payload.Verification)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	h.record(r, actorID(r), audit.ActionVerify, "verification", payload.Verification.ID.String(), nil, verdict)
	api.Success(w, verdict, reqID)
}

func (h *Handler) handleVerifyDocument(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload verifyDocumentPayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	doc, err := base64.StdEncoding.DecodeString(payload.Document)
	if err != nil || len(doc) == 0 {
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "document", Reason: "document must be base64-encoded PDF bytes"}})
		return
	}

	verdict, stamp, err := h.Service.VerifyDocument(payload.PayRecord, doc, h.OwnerPassword)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	h.record(r, actorID(r), audit.ActionVerify, "verification", stamp.ID.String(), nil, verdict)
	api.Success(w, map[string]any{"verdict": verdict, "stamp": stamp}, reqID)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	entry, err := h.Service.Lookup(r.Context(), chi.URLParam(r, "verificationID"))
	if err != nil {
		if errors.Is(err, integrity.ErrNotFound) {
			api.Fail(w, http.StatusNotFound, "not_found", "verification record not found", reqID)
			return
		}
		api.FailError(w, err, reqID)
		return
	}
	api.Success(w, entry, reqID)
}

func (h *Handler) handleListVerifications(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	page := shared.ParsePagination(r, 50, 200)
	entries, err := h.Service.Verifications(r.Context(), page.Limit, page.Offset)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	if entries == nil {
		entries = []integrity.Entry{}
	}
	api.Success(w, entries, reqID)
}

func (h *Handler) handleExportVerifications(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var all []integrity.Entry
	for offset := 0; ; offset += exportPageSize {
		page, err := h.Service.Verifications(r.Context(), exportPageSize, offset)
		if err != nil {
			api.FailError(w, err, reqID)
			return
		}
		all = append(all, page...)
		if len(page) < exportPageSize {
			break
		}
	}

	var buf bytes.Buffer
	if err := gocsv.Marshal(all, &buf); err != nil {
		slog.Error("verification export failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "export_failed", "failed to export verification records", reqID)
		return
	}
	h.record(r, actorID(r), audit.ActionExport, "verification", "", nil, map[string]any{"rows": len(all)})

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="verifications.csv"`)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) record(r *http.Request, actor, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), actor, action, entityType, entityID, middleware.GetRequestID(r.Context()), middleware.ClientIP(r), before, after); err != nil {
		slog.Warn("audit record failed", "action", action, "err", err)
	}
}

func actorID(r *http.Request) string {
	if user, ok := middleware.GetUser(r.Context()); ok {
		return user.UserID
	}
	return ""
}
