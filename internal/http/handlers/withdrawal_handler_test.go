package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/freelance-wallet/internal/dto"
	"github.com/ignatzorin/freelance-wallet/internal/models"
)

func TestWithdrawalHandler_CreateWithdrawal_Unauthorized(t *testing.T) {
	r := gin.New()
	handler := &WithdrawalHandler{}
	r.POST("/withdrawals", handler.CreateWithdrawal)

	req, _ := http.NewRequest("POST", "/withdrawals", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWithdrawalHandler_GetWithdrawal_InvalidID(t *testing.T) {
	r := gin.New()
	handler := &WithdrawalHandler{}
	r.GET("/withdrawals/:id", func(c *gin.Context) {
		c.Set("userID", uuid.New())
		c.Next()
	}, handler.GetWithdrawal)

	req, _ := http.NewRequest("GET", "/withdrawals/invalid-uuid", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWithdrawalHandler_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "100")

	w := env.do(t, http.MethodPost, "/withdrawals", gin.H{"amount_major": "40", "destination_type": "upi", "account": "freelancer@okbank"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[dto.WithdrawalResponse](t, w)
	assert.Equal(t, models.WithdrawalStatusPending, created.Status)
	assert.Equal(t, int64(4000), created.Amount.Minor)
	assert.Equal(t, "fr***@okbank", created.DestinationMasked)
	assert.NotContains(t, w.Body.String(), "freelancer@okbank")

	w = env.do(t, http.MethodGet, "/withdrawals/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/withdrawals/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/withdrawals/"+created.ID.String()+"/cancel", gin.H{"reason": "передумал"})
	require.Equal(t, http.StatusOK, w.Code)
	cancelled := decode[dto.WithdrawalResponse](t, w)
	assert.Equal(t, models.WithdrawalStatusCancelled, cancelled.Status)
	assert.Len(t, cancelled.StatusHistory, 2)

	w = env.do(t, http.MethodGet, "/wallet", nil)
	balance := decode[dto.BalanceResponse](t, w)
	assert.Equal(t, int64(10000), balance.Balance.Minor)
	assert.Equal(t, int64(0), balance.TotalWithdrawn.Minor)

	w = env.do(t, http.MethodGet, "/withdrawals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Data []dto.WithdrawalResponse `json:"data"`
	}](t, w)
	assert.Len(t, list.Data, 1)
}

func TestWithdrawalHandler_IdempotencyHeader(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "100")

	send := func() *httptest.ResponseRecorder {
		body, err := json.Marshal(gin.H{"amount": 2000, "destination_type": "upi", "account": "dev@okbank"})
		require.NoError(t, err)
		req, _ := http.NewRequest(http.MethodPost, "/withdrawals", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "client-key-1")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code)
	second := send()
	require.Equal(t, http.StatusOK, second.Code)

	a := decode[dto.WithdrawalResponse](t, first)
	b := decode[dto.WithdrawalResponse](t, second)
	assert.Equal(t, a.ID, b.ID)
	assert.True(t, b.Replayed)
}

func TestWithdrawalHandler_BusinessRuleErrors(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "30")

	w := env.do(t, http.MethodPost, "/withdrawals", gin.H{"amount": 500, "destination_type": "upi", "account": "dev@okbank"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	errResp := decode[dto.ErrorResponse](t, w)
	assert.Equal(t, "BELOW_MINIMUM", errResp.Code)
	assert.Equal(t, int64(1000), errResp.Details["minimum"])

	w = env.do(t, http.MethodPost, "/withdrawals", gin.H{"amount": 5000, "destination_type": "upi", "account": "dev@okbank"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	errResp = decode[dto.ErrorResponse](t, w)
	assert.Equal(t, "INSUFFICIENT_BALANCE", errResp.Code)
	assert.Equal(t, int64(3000), errResp.Details["available"])

	w = env.do(t, http.MethodPost, "/withdrawals", gin.H{"amount": 2000, "destination_type": "crypto", "account": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for i := 0; i < 3; i++ {
		w = env.do(t, http.MethodPost, "/withdrawals", gin.H{"amount": 1000, "destination_type": "upi", "account": "dev@okbank"})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w = env.do(t, http.MethodPost, "/withdrawals", gin.H{"amount": 1000, "destination_type": "upi", "account": "dev@okbank"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAdminWalletHandler_WithdrawalStatus(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "100")

	w := env.do(t, http.MethodPost, "/withdrawals", gin.H{
		"amount": 5000, "destination_type": "bank_account", "account": "4081 7810 0999 1000 4312", "bank_code": "SABRRUMM",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[dto.WithdrawalResponse](t, w)
	statusPath := "/admin/wallets/" + env.userID.String() + "/withdrawals/" + created.ID.String() + "/status"

	w = env.do(t, http.MethodPut, statusPath, gin.H{"status": "processing"})
	require.Equal(t, http.StatusOK, w.Code)
	processing := decode[struct {
		Withdrawal  dto.WithdrawalResponse `json:"withdrawal"`
		Destination struct {
			Account  string `json:"account"`
			BankCode string `json:"bank_code"`
		} `json:"destination"`
	}](t, w)
	assert.Equal(t, models.WithdrawalStatusProcessing, processing.Withdrawal.Status)
	assert.Equal(t, "40817810099910004312", processing.Destination.Account)

	// Пользователь не может отменить заявку в обработке.
	w = env.do(t, http.MethodPost, "/withdrawals/"+created.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPut, statusPath, gin.H{"status": "unknown"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, statusPath, gin.H{"status": "failed", "note": "счёт закрыт"})
	require.Equal(t, http.StatusOK, w.Code)
	failed := decode[dto.WithdrawalResponse](t, w)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "счёт закрыт", *failed.FailureReason)

	w = env.do(t, http.MethodGet, "/wallet", nil)
	balance := decode[dto.BalanceResponse](t, w)
	assert.Equal(t, int64(10000), balance.Balance.Minor)
}

func TestAdminWalletHandler_SettleWithdrawal(t *testing.T) {
	env := newTestEnv(t)
	env.credit(t, "100")

	w := env.do(t, http.MethodPost, "/withdrawals", gin.H{"amount": 2500, "destination_type": "upi", "account": "dev@okbank"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[dto.WithdrawalResponse](t, w)
	settlePath := "/admin/wallets/" + env.userID.String() + "/withdrawals/settle"

	w = env.do(t, http.MethodPost, settlePath, gin.H{"transaction_id": "nope", "outcome": "completed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, settlePath, gin.H{"transaction_id": created.TransactionID.String(), "outcome": "failed", "note": "шлюз отклонил"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := decode[dto.LedgerEntryResponse](t, w)
	assert.Equal(t, int64(10000), out.Balance.Balance.Minor)

	w = env.do(t, http.MethodPost, settlePath, gin.H{"transaction_id": created.TransactionID.String(), "outcome": "failed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[dto.LedgerEntryResponse](t, w).Replayed)
}
