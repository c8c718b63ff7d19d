// Package api exposes the ledger operations over HTTP. This layer owns
// everything the core service deliberately does not: request parsing,
// error-kind to status-code mapping, and role-based visibility
// filtering of listing results.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/teamspace/expense-ledger/internal/application/port"
	"github.com/teamspace/expense-ledger/internal/application/service"
	"github.com/teamspace/expense-ledger/internal/domain/entity"
	"github.com/teamspace/expense-ledger/internal/domain/money"
)

// Handler serves the expense ledger endpoints
type Handler struct {
	service *service.ExpenseService
	roles   port.RoleResolver
	logger  *zap.Logger
}

// NewHandler creates a new API handler. roles may be nil, in which case
// no visibility filtering is applied.
func NewHandler(svc *service.ExpenseService, roles port.RoleResolver, logger *zap.Logger) *Handler {
	return &Handler{
		service: svc,
		roles:   roles,
		logger:  logger,
	}
}

// NewRouter builds the gin engine with all ledger routes registered
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/expenses", h.CreateExpense)
		v1.GET("/expenses", h.ListExpenses)
		v1.GET("/expenses/aggregate", h.AggregateExpenses)
		v1.GET("/expenses/:id", h.GetExpense)
		v1.PATCH("/expenses/:id", h.UpdateExpense)
		v1.POST("/expenses/:id/transition", h.TransitionExpense)
	}

	return router
}

// CreateExpense handles POST /api/v1/expenses. The Idempotency-Key
// header makes retried submissions safe.
func (h *Handler) CreateExpense(c *gin.Context) {
	var input service.CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	actorID := c.GetHeader("X-User-ID")
	if actorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-User-ID header"})
		return
	}

	expense, err := h.service.Create(c.Request.Context(), input, actorID, c.GetHeader("Idempotency-Key"))
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, expense)
}

// GetExpense handles GET /api/v1/expenses/:id
func (h *Handler) GetExpense(c *gin.Context) {
	expense, err := h.service.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

// ListExpenses handles GET /api/v1/expenses. Results are filtered to
// what the requesting user may see before paging totals are reported.
func (h *Handler) ListExpenses(c *gin.Context) {
	filter, ok := h.parseFilter(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		// report the page actually served, not the raw query value
		page = 1
	}

	expenses, total, err := h.service.List(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		h.renderError(c, err)
		return
	}

	visible := h.filterVisible(c, expenses)

	c.JSON(http.StatusOK, gin.H{
		"items": visible,
		"total": total,
		"page":  page,
	})
}

// AggregateExpenses handles GET /api/v1/expenses/aggregate. Totals are
// returned in minor units alongside a formatted amount.
func (h *Handler) AggregateExpenses(c *gin.Context) {
	filter, ok := h.parseFilter(c)
	if !ok {
		return
	}

	var statuses []entity.Status
	if raw := c.Query("statuses"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, valid := entity.ParseStatus(part)
			if !valid {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + part})
				return
			}
			statuses = append(statuses, status)
		}
	}

	rows, err := h.service.AggregateByCategory(c.Request.Context(), filter, statuses)
	if err != nil {
		h.renderError(c, err)
		return
	}

	type aggregateRow struct {
		Category   string `json:"category"`
		TotalCents int64  `json:"total_cents"`
		Total      string `json:"total"`
	}
	out := make([]aggregateRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, aggregateRow{
			Category:   row.Category,
			TotalCents: row.TotalCents,
			Total:      money.FormatAmount(row.TotalCents),
		})
	}

	c.JSON(http.StatusOK, gin.H{"totals": out})
}

// TransitionExpense handles POST /api/v1/expenses/:id/transition
func (h *Handler) TransitionExpense(c *gin.Context) {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	expense, err := h.service.Transition(c.Request.Context(), c.Param("id"), entity.Status(strings.ToLower(body.Status)))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

// UpdateExpense handles PATCH /api/v1/expenses/:id. The body is decoded
// key-by-key so that an absent field is a no-op while an explicit null
// clears the optional field.
func (h *Handler) UpdateExpense(c *gin.Context) {
	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	patch, err := buildPatch(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	expense, err := h.service.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

func buildPatch(raw map[string]json.RawMessage) (port.ExpensePatch, error) {
	var patch port.ExpensePatch

	fields := map[string]**string{
		"date":           &patch.Date,
		"amount":         &patch.Amount,
		"currency":       &patch.Currency,
		"category":       &patch.Category,
		"description":    &patch.Description,
		"vendor":         &patch.Vendor,
		"payment_method": &patch.PaymentMethod,
		"tax_amount":     &patch.TaxAmount,
		"task_id":        &patch.TaskID,
	}

	for key, target := range fields {
		value, present := raw[key]
		if !present {
			continue
		}
		if string(value) == "null" {
			empty := ""
			*target = &empty
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return patch, errors.New("field " + key + " must be a string or null")
		}
		*target = &s
	}

	if value, present := raw["attachments"]; present {
		attachments := []entity.Attachment{}
		if string(value) != "null" {
			if err := json.Unmarshal(value, &attachments); err != nil {
				return patch, errors.New("field attachments must be a list")
			}
		}
		patch.Attachments = attachments
	}

	return patch, nil
}

func (h *Handler) parseFilter(c *gin.Context) (port.ExpenseFilter, bool) {
	filter := port.ExpenseFilter{
		WorkspaceID: c.Query("workspace_id"),
		ProjectID:   c.Query("project_id"),
		Category:    c.Query("category"),
		DateFrom:    c.Query("date_from"),
		DateTo:      c.Query("date_to"),
		Search:      c.Query("search"),
	}
	if raw := c.Query("status"); raw != "" {
		status, ok := entity.ParseStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + raw})
			return filter, false
		}
		filter.Status = status
	}
	return filter, true
}

// filterVisible applies per-project visibility: owners and admins see
// every row, members and viewers only their own. Resolver failures fail
// closed and hide the row.
func (h *Handler) filterVisible(c *gin.Context, expenses []*entity.Expense) []*entity.Expense {
	if h.roles == nil {
		return expenses
	}

	actorID := c.GetHeader("X-User-ID")
	roleByProject := make(map[string]port.Role)

	visible := make([]*entity.Expense, 0, len(expenses))
	for _, expense := range expenses {
		role, seen := roleByProject[expense.ProjectID]
		if !seen {
			resolved, err := h.roles.ProjectRole(c.Request.Context(), expense.ProjectID, actorID)
			if err != nil {
				h.logger.Warn("Role resolution failed, hiding row",
					zap.String("project_id", expense.ProjectID),
					zap.Error(err))
				resolved = ""
			}
			role = resolved
			roleByProject[expense.ProjectID] = role
		}

		switch role {
		case port.RoleOwner, port.RoleAdmin:
			visible = append(visible, expense)
		case port.RoleMember, port.RoleViewer:
			if expense.CreatedBy == actorID {
				visible = append(visible, expense)
			}
		}
	}
	return visible
}

// renderError maps the ledger error taxonomy onto HTTP status codes.
func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entity.ErrExpenseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, entity.ErrInvalidStatusTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, entity.ErrAmountNotPositive),
		errors.Is(err, entity.ErrInvalidCurrency),
		errors.Is(err, entity.ErrInvalidDate),
		errors.Is(err, entity.ErrInvalidStatus),
		errors.Is(err, entity.ErrInvalidTax),
		errors.Is(err, entity.ErrBudgetCurrencyMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Unhandled ledger error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
