package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/freelance-wallet/internal/dto"
	"github.com/ignatzorin/freelance-wallet/internal/http/handlers/common"
	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/service"
)

// idempotencyHeader заголовок с ключом идемпотентности. Ключ из тела запроса имеет приоритет.
const idempotencyHeader = "Idempotency-Key"

type WithdrawalHandler struct {
	svc *service.WithdrawalService
}

func NewWithdrawalHandler(s *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{svc: s}
}

// CreateWithdrawal POST /withdrawals
func (h *WithdrawalHandler) CreateWithdrawal(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateWithdrawalRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}
	amount, err := req.Minor()
	if err != nil {
		common.Fail(c, err)
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader(idempotencyHeader)
	}

	w, replayed, err := h.svc.Request(c.Request.Context(), userID, service.WithdrawalInput{
		Amount:          amount,
		DestinationType: req.DestinationType,
		Account:         req.Account,
		BankCode:        req.BankCode,
		Holder:          req.Holder,
		IdempotencyKey:  key,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	resp := dto.NewWithdrawalResponse(w)
	resp.Replayed = replayed
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// ListWithdrawals GET /withdrawals
func (h *WithdrawalHandler) ListWithdrawals(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	withdrawals, err := h.svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": withdrawalList(withdrawals)})
}

// GetWithdrawal GET /withdrawals/:id
func (h *WithdrawalHandler) GetWithdrawal(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	w, err := h.svc.Get(c.Request.Context(), userID, id)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewWithdrawalResponse(w))
}

// CancelWithdrawal POST /withdrawals/:id/cancel
func (h *WithdrawalHandler) CancelWithdrawal(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var req dto.CancelWithdrawalRequest
	if c.Request.ContentLength > 0 {
		if err := common.BindJSON(c, &req); err != nil {
			common.Fail(c, err)
			return
		}
	}

	w, err := h.svc.Cancel(c.Request.Context(), userID, id, req.Reason)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewWithdrawalResponse(w))
}

func withdrawalList(items []models.WithdrawalRequest) []dto.WithdrawalResponse {
	out := make([]dto.WithdrawalResponse, 0, len(items))
	for i := range items {
		out = append(out, dto.NewWithdrawalResponse(&items[i]))
	}
	return out
}
