package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/freelance-wallet/internal/dto"
	"github.com/ignatzorin/freelance-wallet/internal/http/handlers/common"
	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/service"
)

// WalletHandler обслуживает чтение кошелька текущего пользователя.
type WalletHandler struct {
	wallet    *service.WalletService
	reconcile *service.ReconciliationService
	currency  string
}

func NewWalletHandler(wallet *service.WalletService, reconcile *service.ReconciliationService, currency string) *WalletHandler {
	return &WalletHandler{wallet: wallet, reconcile: reconcile, currency: currency}
}

// GetBalance GET /wallet
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	acc, err := h.wallet.GetAccount(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewBalanceResponse(acc, h.currency))
}

// ListTransactions GET /wallet/transactions?type=&status=&from=&to=&limit=&offset=
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	from, err := common.ParseTimeQuery(c, "from")
	if err != nil {
		common.Fail(c, err)
		return
	}
	to, err := common.ParseTimeQuery(c, "to")
	if err != nil {
		common.Fail(c, err)
		return
	}
	limit, offset := common.GetPagination(c)

	filter := models.TransactionFilter{
		Type:   c.Query("type"),
		Status: c.Query("status"),
		From:   from,
		To:     to,
		Limit:  limit,
		Offset: offset,
	}
	txs, total, err := h.wallet.ListTransactions(c.Request.Context(), userID, filter)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListResponse{
		Data:       dto.NewTransactionList(txs),
		Pagination: dto.NewPagination(total, limit, offset),
	})
}

// PendingEarnings GET /wallet/pending-earnings
func (h *WalletHandler) PendingEarnings(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	items, total, err := h.wallet.PendingEarnings(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPendingEarningsResponse(items, total))
}

// Health GET /wallet/health
func (h *WalletHandler) Health(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	report, err := h.reconcile.Health(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
