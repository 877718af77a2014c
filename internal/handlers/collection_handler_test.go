package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/templebooks/backend/internal/config"
	"github.com/templebooks/backend/internal/services"
)

func newTestHandler(t *testing.T) (*CollectionHandler, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	redisClient, _ := redismock.NewClientMock()
	cfg := &config.ReconciliationConfig{
		Location:        time.UTC,
		WithdrawalQueue: "withdrawal_events",
		MaxRetries:      1,
		RetryBaseDelay:  time.Millisecond,
	}
	service := services.NewReconciliationService(db, redisClient, cfg)
	return NewCollectionHandler(service, cfg), mock, func() { db.Close() }
}

func asCashier(r *http.Request, cashier string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), "cashier", cashier))
}

func TestCollectionHandler_GetProfile(t *testing.T) {
	handler, mock, closeDB := newTestHandler(t)
	defer closeDB()

	t.Run("returns the profile", func(t *testing.T) {
		mock.ExpectQuery("SELECT username, COALESCE\\(display_name, ''\\), active").
			WithArgs("asha").
			WillReturnRows(sqlmock.NewRows([]string{"username", "display_name", "active"}).
				AddRow("asha", "Asha R", true))

		req := asCashier(httptest.NewRequest("GET", "/me", nil), "asha")
		w := httptest.NewRecorder()

		handler.GetProfile(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Username    string `json:"username"`
			DisplayName string `json:"displayName"`
			Active      bool   `json:"active"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "asha", resp.Username)
		assert.Equal(t, "Asha R", resp.DisplayName)
		assert.True(t, resp.Active)
	})

	t.Run("unknown cashier", func(t *testing.T) {
		mock.ExpectQuery("SELECT username, COALESCE\\(display_name, ''\\), active").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"username", "display_name", "active"}))

		req := asCashier(httptest.NewRequest("GET", "/me", nil), "ghost")
		w := httptest.NewRecorder()

		handler.GetProfile(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCollectionHandler_RecordSale(t *testing.T) {
	handler, mock, closeDB := newTestHandler(t)
	defer closeDB()

	t.Run("successful sale", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT active FROM cashiers WHERE username = \\$1 FOR UPDATE").
			WithArgs("asha").
			WillReturnRows(sqlmock.NewRows([]string{"active"}).AddRow(true))
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs("asha", "CASH", int64(10000), "archana", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
		mock.ExpectCommit()

		body, _ := json.Marshal(map[string]any{"channel": "CASH", "amount": 10000, "narration": "archana"})
		req := asCashier(httptest.NewRequest("POST", "/sales", bytes.NewBuffer(body)), "asha")
		w := httptest.NewRecorder()

		handler.RecordSale(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, true, resp["success"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing cashier identity", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{"channel": "CASH", "amount": 10000})
		req := httptest.NewRequest("POST", "/sales", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		handler.RecordSale(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown channel", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{"channel": "CARD", "amount": 10000})
		req := asCashier(httptest.NewRequest("POST", "/sales", bytes.NewBuffer(body)), "asha")
		w := httptest.NewRecorder()

		handler.RecordSale(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("zero amount", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{"channel": "CASH", "amount": 0})
		req := asCashier(httptest.NewRequest("POST", "/sales", bytes.NewBuffer(body)), "asha")
		w := httptest.NewRecorder()

		handler.RecordSale(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		req := asCashier(httptest.NewRequest("POST", "/sales",
			bytes.NewBufferString(`{"channel":"CASH","amount":100,"discount":5}`)), "asha")
		w := httptest.NewRecorder()

		handler.RecordSale(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := asCashier(httptest.NewRequest("POST", "/sales", bytes.NewBufferString("not json")), "asha")
		w := httptest.NewRecorder()

		handler.RecordSale(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCollectionHandler_RequestWithdrawal(t *testing.T) {
	handler, mock, closeDB := newTestHandler(t)
	defer closeDB()

	t.Run("insufficient cash maps to 400 with amounts", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT active FROM cashiers WHERE username = \\$1 FOR UPDATE").
			WithArgs("asha").
			WillReturnRows(sqlmock.NewRows([]string{"active"}).AddRow(true))
		mock.ExpectQuery("SELECT id, cashier, channel, amount").
			WithArgs("asha", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "cashier", "channel", "amount", "narration", "recorded_at", "withdrawal_id", "online_cleared"}).
				AddRow(int64(1), "asha", "CASH", int64(2000), "", time.Now(), nil, false))
		mock.ExpectQuery("SELECT id, cashier, amount, kind, status, recorded_at").
			WithArgs("asha", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "cashier", "amount", "kind", "status", "recorded_at"}))
		mock.ExpectRollback()

		body, _ := json.Marshal(map[string]any{"kind": "PARTIAL", "amount": 5000})
		req := asCashier(httptest.NewRequest("POST", "/withdrawals", bytes.NewBuffer(body)), "asha")
		w := httptest.NewRecorder()

		handler.RequestWithdrawal(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, float64(5000), resp["requested"])
		assert.Equal(t, float64(2000), resp["available"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown kind", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{"kind": "HALF", "amount": 5000})
		req := asCashier(httptest.NewRequest("POST", "/withdrawals", bytes.NewBuffer(body)), "asha")
		w := httptest.NewRecorder()

		handler.RequestWithdrawal(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown cashier maps to 404", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT active FROM cashiers WHERE username = \\$1 FOR UPDATE").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"active"}))
		mock.ExpectRollback()

		body, _ := json.Marshal(map[string]any{"kind": "FULL"})
		req := asCashier(httptest.NewRequest("POST", "/withdrawals", bytes.NewBuffer(body)), "ghost")
		w := httptest.NewRecorder()

		handler.RequestWithdrawal(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCollectionHandler_GetCollection(t *testing.T) {
	handler, mock, closeDB := newTestHandler(t)
	defer closeDB()

	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, cashier, channel, amount").
		WithArgs("asha", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "cashier", "channel", "amount", "narration", "recorded_at", "withdrawal_id", "online_cleared"}).
			AddRow(int64(1), "asha", "CASH", int64(10000), "", now, nil, false).
			AddRow(int64(2), "asha", "ONLINE", int64(5000), "", now, nil, false))
	mock.ExpectQuery("SELECT id, cashier, amount, kind, status, recorded_at").
		WithArgs("asha", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "cashier", "amount", "kind", "status", "recorded_at"}))

	req := asCashier(httptest.NewRequest("GET", "/collection", nil), "asha")
	w := httptest.NewRecorder()

	handler.GetCollection(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Summary struct {
			CashCollected   int64 `json:"cashCollected"`
			OnlineCollected int64 `json:"onlineCollected"`
			CashRemaining   int64 `json:"cashRemaining"`
			Total           int64 `json:"total"`
		} `json:"summary"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(10000), resp.Summary.CashCollected)
	assert.Equal(t, int64(5000), resp.Summary.OnlineCollected)
	assert.Equal(t, int64(10000), resp.Summary.CashRemaining)
	assert.Equal(t, int64(15000), resp.Summary.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectionHandler_GetCollectionByDate(t *testing.T) {
	handler, mock, closeDB := newTestHandler(t)
	defer closeDB()

	t.Run("valid date", func(t *testing.T) {
		day := time.Date(2025, 7, 13, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT id, cashier, channel, amount").
			WithArgs("asha", day, day.AddDate(0, 0, 1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "cashier", "channel", "amount", "narration", "recorded_at", "withdrawal_id", "online_cleared"}))
		mock.ExpectQuery("SELECT id, cashier, amount, kind, status, recorded_at").
			WithArgs("asha", day, day.AddDate(0, 0, 1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "cashier", "amount", "kind", "status", "recorded_at"}))

		req := asCashier(httptest.NewRequest("GET", "/collection/date?date=2025-07-13", nil), "asha")
		w := httptest.NewRecorder()

		handler.GetCollectionByDate(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed date", func(t *testing.T) {
		req := asCashier(httptest.NewRequest("GET", "/collection/date?date=13-07-2025", nil), "asha")
		w := httptest.NewRecorder()

		handler.GetCollectionByDate(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("range end before start", func(t *testing.T) {
		req := asCashier(httptest.NewRequest("GET", "/collection/date?from=2025-07-13&to=2025-07-10", nil), "asha")
		w := httptest.NewRecorder()

		handler.GetCollectionByDate(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCollectionHandler_GetLastWithdrawal(t *testing.T) {
	handler, mock, closeDB := newTestHandler(t)
	defer closeDB()

	t.Run("no withdrawals yet", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, cashier, amount, kind, status, recorded_at").
			WithArgs("asha").
			WillReturnRows(sqlmock.NewRows([]string{"id", "cashier", "amount", "kind", "status", "recorded_at"}))

		req := asCashier(httptest.NewRequest("GET", "/withdrawals/last", nil), "asha")
		w := httptest.NewRecorder()

		handler.GetLastWithdrawal(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("returns the recomputed breakdown", func(t *testing.T) {
		at := time.Date(2025, 7, 13, 19, 0, 0, 0, time.UTC)
		day := time.Date(2025, 7, 13, 0, 0, 0, 0, time.UTC)

		mock.ExpectQuery("SELECT id, cashier, amount, kind, status, recorded_at").
			WithArgs("asha").
			WillReturnRows(sqlmock.NewRows([]string{"id", "cashier", "amount", "kind", "status", "recorded_at"}).
				AddRow(int64(3), "asha", int64(12000), "FULL", "POSTED", at))
		mock.ExpectQuery("SELECT id, cashier, channel, amount").
			WithArgs("asha", day, day.AddDate(0, 0, 1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "cashier", "channel", "amount", "narration", "recorded_at", "withdrawal_id", "online_cleared"}).
				AddRow(int64(1), "asha", "CASH", int64(12000), "", at.Add(-time.Hour), int64(3), false))
		mock.ExpectQuery("SELECT id, cashier, amount, kind, status, recorded_at").
			WithArgs("asha", day, day.AddDate(0, 0, 1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "cashier", "amount", "kind", "status", "recorded_at"}).
				AddRow(int64(3), "asha", int64(12000), "FULL", "POSTED", at))

		req := asCashier(httptest.NewRequest("GET", "/withdrawals/last", nil), "asha")
		w := httptest.NewRecorder()

		handler.GetLastWithdrawal(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			FromCash int64 `json:"fromCash"`
			Total    int64 `json:"total"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(12000), resp.FromCash)
		assert.Equal(t, int64(12000), resp.Total)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
