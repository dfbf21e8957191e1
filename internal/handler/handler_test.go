package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/auth"
	"github.com/honeynil/TicketPurchaseService/internal/models"
	pkgerrors "github.com/honeynil/TicketPurchaseService/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const secret = "handler-secret"

type MockPurchaseService struct {
	mock.Mock
}

func (m *MockPurchaseService) ListEvents(ctx context.Context) []models.Event {
	return m.Called(ctx).Get(0).([]models.Event)
}

func (m *MockPurchaseService) CreatePurchase(ctx context.Context, userID string, eventID int64, quantity int) (*models.Purchase, error) {
	args := m.Called(ctx, userID, eventID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Purchase), args.Error(1)
}

func (m *MockPurchaseService) GetPurchase(ctx context.Context, id int64) (*models.Purchase, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Purchase), args.Error(1)
}

func (m *MockPurchaseService) ListUserPurchases(ctx context.Context, userID string) ([]models.PurchaseDetail, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PurchaseDetail), args.Error(1)
}

func (m *MockPurchaseService) ConfirmPayment(ctx context.Context, userID string, id int64, paymentMethod string) (*models.Purchase, error) {
	args := m.Called(ctx, userID, id, paymentMethod)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Purchase), args.Error(1)
}

func (m *MockPurchaseService) CancelPurchase(ctx context.Context, userID string, id int64) (*models.Purchase, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Purchase), args.Error(1)
}

func setup(t *testing.T) (http.Handler, *MockPurchaseService) {
	t.Helper()
	svc := new(MockPurchaseService)
	r := mux.NewRouter()
	r.Use(auth.AuthMiddleware(auth.NewVerifier(secret, "HS256")))
	NewHandler(svc).RegisterRoutes(r)
	return r, svc
}

func do(t *testing.T, h http.Handler, method, path, body string, claims *models.Claims) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if claims != nil {
		token, err := auth.IssueToken(secret, "HS256", *claims, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var (
	user  = &models.Claims{SubjectID: "U1", Role: "user"}
	other = &models.Claims{SubjectID: "U2", Role: "user"}
	admin = &models.Claims{SubjectID: "A1", Role: models.RoleAdmin}
)

func samplePurchase(status models.PurchaseStatus) *models.Purchase {
	return &models.Purchase{
		ID:                7,
		UserID:            "U1",
		EventID:           1,
		Quantity:          4,
		UnitPrice:         models.MustMoney("25"),
		Total:             models.MustMoney("100"),
		Status:            status,
		PurchaseTimestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestHandler_RequiresToken(t *testing.T) {
	h, svc := setup(t)

	for _, path := range []string{"/purchases/events", "/purchases/mine", "/purchases/7"} {
		rec := do(t, h, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	svc.AssertNotCalled(t, "ListEvents", mock.Anything)
}

func TestHandler_CreatePurchase(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		h, svc := setup(t)
		svc.On("CreatePurchase", mock.Anything, "U1", int64(1), 4).Return(samplePurchase(models.StatusPending), nil)

		rec := do(t, h, http.MethodPost, "/purchases", `{"eventId":1,"quantity":4}`, user)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"total":100.00`)
		body := decode(t, rec)
		assert.Equal(t, "pending", body["status"])
		assert.Equal(t, float64(7), body["id"])
		assert.Nil(t, body["paymentMethod"])
	})

	t.Run("malformed body", func(t *testing.T) {
		h, svc := setup(t)

		rec := do(t, h, http.MethodPost, "/purchases", `{"eventId":`, user)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "CreatePurchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	errorCases := []struct {
		name   string
		err    error
		status int
	}{
		{"insufficient capacity", pkgerrors.ErrInsufficientCapacity, http.StatusBadRequest},
		{"event not found", pkgerrors.ErrEventNotFound, http.StatusNotFound},
		{"internal", errors.New("failed to create purchase: pq: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			h, svc := setup(t)
			svc.On("CreatePurchase", mock.Anything, "U1", int64(1), 11).Return(nil, tc.err)

			rec := do(t, h, http.MethodPost, "/purchases", `{"eventId":1,"quantity":11}`, user)

			assert.Equal(t, tc.status, rec.Code)
			body := decode(t, rec)
			if tc.status == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body["error"])
			} else {
				assert.Equal(t, tc.err.Error(), body["error"])
			}
		})
	}
}

func TestHandler_GetPurchase(t *testing.T) {
	t.Run("owner", func(t *testing.T) {
		h, svc := setup(t)
		svc.On("GetPurchase", mock.Anything, int64(7)).Return(samplePurchase(models.StatusPending), nil)

		rec := do(t, h, http.MethodGet, "/purchases/7", "", user)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("non-owner forbidden", func(t *testing.T) {
		h, svc := setup(t)
		svc.On("GetPurchase", mock.Anything, int64(7)).Return(samplePurchase(models.StatusPaid), nil)

		rec := do(t, h, http.MethodGet, "/purchases/7", "", other)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin bypasses ownership", func(t *testing.T) {
		h, svc := setup(t)
		svc.On("GetPurchase", mock.Anything, int64(7)).Return(samplePurchase(models.StatusPaid), nil)

		rec := do(t, h, http.MethodGet, "/purchases/7", "", admin)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		h, svc := setup(t)
		svc.On("GetPurchase", mock.Anything, int64(8)).Return(nil, pkgerrors.ErrPurchaseNotFound)

		rec := do(t, h, http.MethodGet, "/purchases/8", "", user)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		h, svc := setup(t)

		rec := do(t, h, http.MethodGet, "/purchases/abc", "", user)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "GetPurchase", mock.Anything, mock.Anything)
	})
}

func TestHandler_ConfirmPayment(t *testing.T) {
	t.Run("paid", func(t *testing.T) {
		h, svc := setup(t)
		paid := samplePurchase(models.StatusPaid)
		method := "card"
		paid.PaymentMethod = &method
		svc.On("ConfirmPayment", mock.Anything, "U1", int64(7), "card").Return(paid, nil)

		rec := do(t, h, http.MethodPost, "/purchases/7/pay", `{"paymentMethod":"card"}`, user)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "paid", body["status"])
		assert.Equal(t, "card", body["paymentMethod"])
	})

	t.Run("second payment conflicts", func(t *testing.T) {
		h, svc := setup(t)
		svc.On("ConfirmPayment", mock.Anything, "U1", int64(7), "card").Return(nil, pkgerrors.ErrAlreadyPaid)

		rec := do(t, h, http.MethodPost, "/purchases/7/pay", `{"paymentMethod":"card"}`, user)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("forbidden", func(t *testing.T) {
		h, svc := setup(t)
		svc.On("ConfirmPayment", mock.Anything, "U2", int64(7), "card").Return(nil, pkgerrors.ErrNotOwner)

		rec := do(t, h, http.MethodPost, "/purchases/7/pay", `{"paymentMethod":"card"}`, other)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestHandler_CancelPurchase(t *testing.T) {
	t.Run("cancelled", func(t *testing.T) {
		h, svc := setup(t)
		svc.On("CancelPurchase", mock.Anything, "U1", int64(7)).Return(samplePurchase(models.StatusCancelled), nil)

		rec := do(t, h, http.MethodDelete, "/purchases/7", "", user)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"Purchase cancelled successfully","data":{"purchaseId":7,"status":"cancelled"}}`, rec.Body.String())
	})

	t.Run("paid conflicts", func(t *testing.T) {
		h, svc := setup(t)
		svc.On("CancelPurchase", mock.Anything, "U1", int64(7)).Return(nil, pkgerrors.ErrPaidPurchase)

		rec := do(t, h, http.MethodDelete, "/purchases/7", "", user)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestHandler_Lists(t *testing.T) {
	t.Run("events", func(t *testing.T) {
		h, svc := setup(t)
		var event models.Event
		require.NoError(t, json.Unmarshal([]byte(`{"id":1,"title":"Concert","price":25,"capacity":10}`), &event))
		svc.On("ListEvents", mock.Anything).Return([]models.Event{event})

		rec := do(t, h, http.MethodGet, "/purchases/events", "", user)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"total":1,"events":[{"id":1,"title":"Concert","price":25,"capacity":10}]}`, rec.Body.String())
	})

	t.Run("mine", func(t *testing.T) {
		h, svc := setup(t)
		withEvent := models.PurchaseDetail{
			Purchase: *samplePurchase(models.StatusPaid),
			Event:    &models.Event{ID: 1, Price: decimal.NewFromInt(25), Capacity: 10, Raw: json.RawMessage(`{"id":1,"title":"Concert"}`)},
		}
		withoutEvent := models.PurchaseDetail{Purchase: *samplePurchase(models.StatusPending)}
		withoutEvent.ID = 6
		svc.On("ListUserPurchases", mock.Anything, "U1").Return([]models.PurchaseDetail{withEvent, withoutEvent}, nil)

		rec := do(t, h, http.MethodGet, "/purchases/mine", "", user)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, float64(2), body["total"])
		purchases := body["purchases"].([]interface{})
		require.Len(t, purchases, 2)
		first := purchases[0].(map[string]interface{})
		assert.Equal(t, float64(7), first["id"])
		assert.Equal(t, "Concert", first["event"].(map[string]interface{})["title"])
		second := purchases[1].(map[string]interface{})
		assert.Contains(t, second, "event")
		assert.Nil(t, second["event"])
	})
}
