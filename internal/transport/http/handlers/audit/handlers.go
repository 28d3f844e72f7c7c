package audithandler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"

	"paystub/internal/domain/audit"
	"paystub/internal/domain/auth"
	"paystub/internal/transport/http/api"
	"paystub/internal/transport/http/middleware"
	"paystub/internal/transport/http/shared"
)

const exportPageSize = 1000

// EventLister is the read side of the audit trail.
type EventLister interface {
	Count(ctx context.Context, filter audit.Filter) (int, error)
	List(ctx context.Context, filter audit.Filter, includeDetails bool, limit, offset int) ([]audit.Event, error)
}

type Handler struct {
	Service EventLister
	Perms   middleware.PermissionStore
}

func NewHandler(service EventLister, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/events", h.handleListEvents)
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/events/export", h.handleExportEvents)
	})
}

func filterFrom(r *http.Request) audit.Filter {
	q := r.URL.Query()
	return audit.Filter{Action: q.Get("action"), EntityType: q.Get("entityType"), ActorID: q.Get("actorId")}
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 100, 500)
	filter := filterFrom(r)
	includeDetails := r.URL.Query().Get("includeDetails") == "true"
	total, err := h.Service.Count(r.Context(), filter)
	if err != nil {
		slog.Warn("audit count failed", "err", err)
	}

	events, err := h.Service.List(r.Context(), filter, includeDetails, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", middleware.GetRequestID(r.Context()))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, events, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	filter := filterFrom(r)
	var events []audit.Event
	for offset := 0; ; offset += exportPageSize {
		page, err := h.Service.List(r.Context(), filter, false, exportPageSize, offset)
		if err != nil {
			api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export audit events", middleware.GetRequestID(r.Context()))
			return
		}
		events = append(events, page...)
		if len(page) < exportPageSize {
			break
		}
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=audit-events.csv")
	if err := gocsv.Marshal(events, w); err != nil {
		slog.Warn("audit export failed", "err", err)
	}
}
