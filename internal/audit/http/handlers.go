package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fieldforce/fieldforce/internal/audit"
	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/shared"
)

const dateLayout = "2006-01-02"

// QueryService defines the business contract for audit queries.
type QueryService interface {
	Query(ctx context.Context, filters audit.Filters) (audit.Page, error)
}

// Recorder writes audit entries for sensitive reads.
type Recorder interface {
	Log(ctx context.Context, entry audit.Entry) *audit.Entry
}

// Handler serves GET /api/audit.
type Handler struct {
	logger   *slog.Logger
	service  QueryService
	recorder Recorder
	effects  shared.SideEffects
}

// NewHandler creates the audit handler. recorder may be nil.
func NewHandler(logger *slog.Logger, service QueryService, recorder Recorder, effects shared.SideEffects) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, recorder: recorder, effects: effects}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.RespondError(w, httpx.Errorf(httpx.ErrUnauthorized, "Authentication required"))
		return
	}
	if !sess.Can(rbac.PermAuditRead) {
		httpx.RespondError(w, httpx.Errorf(httpx.ErrForbidden, "Insufficient permissions to view audit logs"))
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !sess.SeesAllOrganizations() {
		if filters.OrganizationID != "" && !sess.SameOrganization(filters.OrganizationID) {
			httpx.RespondError(w, httpx.Errorf(httpx.ErrForbidden, "Cannot view audit logs of another organization"))
			return
		}
		if sess.OrganizationID == "" {
			httpx.JSON(w, http.StatusOK, audit.EmptyPage(filters))
			return
		}
		filters.OrganizationID = sess.OrganizationID
	}

	page, err := h.service.Query(r.Context(), filters)
	if err != nil {
		h.logger.Error("query audit logs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	if h.recorder != nil {
		h.effects.Run(r.Context(), "audit.read", func(ctx context.Context) error {
			if h.recorder.Log(ctx, audit.Entry{
				UserID:         sess.UserID,
				OrganizationID: sess.OrganizationID,
				Action:         "audit.read",
				Resource:       string(rbac.ResourceAudit),
				Details: map[string]any{
					"filters": filterDetails(filters),
					"results": len(page.Logs),
				},
			}) == nil {
				return errors.New("audit entry not stored")
			}
			return nil
		})
	}

	httpx.JSON(w, http.StatusOK, page)
}

func parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	filters := audit.Filters{
		UserID:         strings.TrimSpace(q.Get("userId")),
		OrganizationID: strings.TrimSpace(q.Get("organizationId")),
		Action:         strings.TrimSpace(q.Get("action")),
		Resource:       strings.TrimSpace(q.Get("resource")),
		ResourceID:     strings.TrimSpace(q.Get("resourceId")),
	}
	var err error
	if filters.StartDate, err = parseDate(q.Get("startDate"), false); err != nil {
		return audit.Filters{}, httpx.Errorf(httpx.ErrValidation, "startDate must be RFC3339 or YYYY-MM-DD")
	}
	if filters.EndDate, err = parseDate(q.Get("endDate"), true); err != nil {
		return audit.Filters{}, httpx.Errorf(httpx.ErrValidation, "endDate must be RFC3339 or YYYY-MM-DD")
	}
	if !filters.StartDate.IsZero() && !filters.EndDate.IsZero() && filters.StartDate.After(filters.EndDate) {
		return audit.Filters{}, httpx.Errorf(httpx.ErrValidation, "startDate must not be after endDate")
	}
	if filters.Limit, err = parseNonNegative(q.Get("limit")); err != nil {
		return audit.Filters{}, httpx.Errorf(httpx.ErrValidation, "limit must be a non-negative integer")
	}
	if filters.Offset, err = parseNonNegative(q.Get("offset")); err != nil {
		return audit.Filters{}, httpx.Errorf(httpx.ErrValidation, "offset must be a non-negative integer")
	}
	return filters, nil
}

// parseDate accepts RFC3339 timestamps or calendar dates. A calendar end date covers the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parseNonNegative(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

func filterDetails(f audit.Filters) map[string]any {
	details := map[string]any{}
	for k, v := range map[string]string{
		"userId":         f.UserID,
		"organizationId": f.OrganizationID,
		"action":         f.Action,
		"resource":       f.Resource,
		"resourceId":     f.ResourceID,
	} {
		if v != "" {
			details[k] = v
		}
	}
	if !f.StartDate.IsZero() {
		details["startDate"] = f.StartDate.Format(time.RFC3339)
	}
	if !f.EndDate.IsZero() {
		details["endDate"] = f.EndDate.Format(time.RFC3339)
	}
	return details
}
