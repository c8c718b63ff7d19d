package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teamspace/expense-ledger/internal/application/port"
	"github.com/teamspace/expense-ledger/internal/application/service"
	"github.com/teamspace/expense-ledger/internal/domain/entity"
	"github.com/teamspace/expense-ledger/internal/infrastructure/cache"
	"github.com/teamspace/expense-ledger/internal/infrastructure/persistence/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockRoleResolver struct {
	roles map[string]port.Role // projectID+":"+userID -> role
	err   error
}

func (m *mockRoleResolver) ProjectRole(_ context.Context, projectID, userID string) (port.Role, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.roles[projectID+":"+userID], nil
}

func newTestRouter(roles port.RoleResolver) (*gin.Engine, *service.ExpenseService) {
	svc := service.NewExpenseService(
		memory.NewExpenseRepository(),
		memory.NewIdempotencyStore(),
		cache.NewTTL(),
		nil,
		nil,
		zap.NewNop(),
		service.Options{},
	)
	handler := NewHandler(svc, roles, zap.NewNop())
	return NewRouter(handler), svc
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-1")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createBody() map[string]any {
	return map[string]any{
		"project_id":   "proj-1",
		"workspace_id": "ws-1",
		"date":         "2026-03-15",
		"amount":       "125.50",
		"currency":     "RUB",
		"category":     "Travel",
	}
}

func TestCreateExpense(t *testing.T) {
	router, _ := newTestRouter(nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/expenses", createBody(), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var created entity.Expense
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "125.50", created.Amount)
	assert.Equal(t, entity.StatusDraft, created.Status)
	assert.Equal(t, "user-1", created.CreatedBy)
}

func TestCreateExpense_IdempotencyHeader(t *testing.T) {
	router, _ := newTestRouter(nil)
	headers := map[string]string{"Idempotency-Key": "abc"}

	w1 := doJSON(t, router, http.MethodPost, "/api/v1/expenses", createBody(), headers)
	require.Equal(t, http.StatusCreated, w1.Code)

	retry := createBody()
	retry["amount"] = "999.99"
	w2 := doJSON(t, router, http.MethodPost, "/api/v1/expenses", retry, headers)
	require.Equal(t, http.StatusCreated, w2.Code)

	var first, second entity.Expense
	require.NoError(t, json.Unmarshal(w1.Body.Bytes(), &first))
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &second))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "125.50", second.Amount)
}

func TestCreateExpense_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(map[string]any)
		wantStatus int
	}{
		{"bad amount", func(b map[string]any) { b["amount"] = "abc" }, http.StatusBadRequest},
		{"zero amount", func(b map[string]any) { b["amount"] = "0" }, http.StatusBadRequest},
		{"bad currency", func(b map[string]any) { b["currency"] = "xx" }, http.StatusBadRequest},
		{"bad date", func(b map[string]any) { b["date"] = "someday" }, http.StatusBadRequest},
		{"bad status", func(b map[string]any) { b["status"] = "archived" }, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(nil)
			body := createBody()
			tt.mutate(body)
			w := doJSON(t, router, http.MethodPost, "/api/v1/expenses", body, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestCreateExpense_MissingActor(t *testing.T) {
	router, _ := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/expenses", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransitionExpense(t *testing.T) {
	router, svc := newTestRouter(nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, service.CreateInput{
		ProjectID:   "proj-1",
		WorkspaceID: "ws-1",
		Date:        "2026-03-15",
		Amount:      "10.00",
	}, "user-1", "")
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/api/v1/expenses/"+created.ID+"/transition",
		map[string]any{"status": "pending"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Skipping to payable from pending conflicts.
	w = doJSON(t, router, http.MethodPost, "/api/v1/expenses/"+created.ID+"/transition",
		map[string]any{"status": "payable"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Unknown id is not found.
	w = doJSON(t, router, http.MethodPost, "/api/v1/expenses/missing/transition",
		map[string]any{"status": "pending"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetExpense_NotFound(t *testing.T) {
	router, _ := newTestRouter(nil)
	w := doJSON(t, router, http.MethodGet, "/api/v1/expenses/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateExpense_NullClearsField(t *testing.T) {
	router, svc := newTestRouter(nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, service.CreateInput{
		ProjectID:   "proj-1",
		WorkspaceID: "ws-1",
		Date:        "2026-03-15",
		Amount:      "10.00",
		Vendor:      "Aeroflot",
		Description: "flight",
	}, "user-1", "")
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPatch, "/api/v1/expenses/"+created.ID,
		map[string]any{"vendor": nil, "amount": "20.5"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var updated entity.Expense
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Empty(t, updated.Vendor)
	assert.Equal(t, "20.50", updated.Amount)
	// Absent keys are untouched.
	assert.Equal(t, "flight", updated.Description)
}

func TestListExpenses_RoleVisibility(t *testing.T) {
	resolver := &mockRoleResolver{roles: map[string]port.Role{
		"proj-admin:user-1":  port.RoleAdmin,
		"proj-member:user-1": port.RoleMember,
		// proj-none:user-1 resolves to no role at all
	}}
	router, svc := newTestRouter(resolver)
	ctx := context.Background()

	mk := func(project, creator string) {
		_, err := svc.Create(ctx, service.CreateInput{
			ProjectID:   project,
			WorkspaceID: "ws-1",
			Date:        "2026-03-15",
			Amount:      "10.00",
		}, creator, "")
		require.NoError(t, err)
	}

	mk("proj-admin", "user-2")  // admin sees rows of others
	mk("proj-member", "user-1") // member sees own rows
	mk("proj-member", "user-2") // but not others'
	mk("proj-none", "user-1")   // no role hides everything

	w := doJSON(t, router, http.MethodGet, "/api/v1/expenses?workspace_id=ws-1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Items []entity.Expense `json:"items"`
		Total int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.Len(t, resp.Items, 2)
	assert.Equal(t, "proj-admin", resp.Items[0].ProjectID)
	assert.Equal(t, "proj-member", resp.Items[1].ProjectID)
	assert.Equal(t, "user-1", resp.Items[1].CreatedBy)
	// Total reflects the unfiltered match count.
	assert.Equal(t, 4, resp.Total)
}

func TestListExpenses_EchoesEffectivePage(t *testing.T) {
	router, _ := newTestRouter(nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/expenses", createBody(), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	// An out-of-range page is clamped to 1; the response reports the
	// page that was actually served.
	w = doJSON(t, router, http.MethodGet, "/api/v1/expenses?page=-3", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Items []entity.Expense `json:"items"`
		Total int              `json:"total"`
		Page  int              `json:"page"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Page)
	assert.Len(t, resp.Items, 1)
}

func TestListExpenses_ResolverFailureFailsClosed(t *testing.T) {
	resolver := &mockRoleResolver{err: errors.New("role service down")}
	router, svc := newTestRouter(resolver)

	_, err := svc.Create(context.Background(), service.CreateInput{
		ProjectID:   "proj-1",
		WorkspaceID: "ws-1",
		Date:        "2026-03-15",
		Amount:      "10.00",
	}, "user-1", "")
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodGet, "/api/v1/expenses", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Items []entity.Expense `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Items)
}

func TestAggregateExpenses(t *testing.T) {
	router, svc := newTestRouter(nil)
	ctx := context.Background()

	for _, row := range []struct{ amount, category string }{
		{"10.00", "Travel"},
		{"5.00", "travel"},
		{"3.00", "Food"},
	} {
		_, err := svc.Create(ctx, service.CreateInput{
			ProjectID:   "proj-1",
			WorkspaceID: "ws-1",
			Date:        "2026-03-15",
			Amount:      row.amount,
			Category:    row.category,
		}, "user-1", "")
		require.NoError(t, err)
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/expenses/aggregate?workspace_id=ws-1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Totals []struct {
			Category   string `json:"category"`
			TotalCents int64  `json:"total_cents"`
			Total      string `json:"total"`
		} `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	totals := make(map[string]int64)
	formatted := make(map[string]string)
	for _, row := range resp.Totals {
		totals[row.Category] = row.TotalCents
		formatted[row.Category] = row.Total
	}
	assert.Equal(t, map[string]int64{"travel": 1500, "food": 300}, totals)
	assert.Equal(t, "15.00", formatted["travel"])

	// Unknown status in the allow-list is rejected.
	w = doJSON(t, router, http.MethodGet, "/api/v1/expenses/aggregate?statuses=draft,archived", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(nil)
	w := doJSON(t, router, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
