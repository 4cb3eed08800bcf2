package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-wallet/internal/dto"
	"github.com/ignatzorin/freelance-wallet/internal/http/handlers/common"
	"github.com/ignatzorin/freelance-wallet/internal/ledger"
	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/service"
)

// AdminWalletHandler служебные маршруты: начисления от платёжного контура,
// обработка заявок на вывод и сверка.
type AdminWalletHandler struct {
	wallet      *service.WalletService
	withdrawals *service.WithdrawalService
	reconcile   *service.ReconciliationService
	currency    string
}

func NewAdminWalletHandler(wallet *service.WalletService, withdrawals *service.WithdrawalService, reconcile *service.ReconciliationService, currency string) *AdminWalletHandler {
	return &AdminWalletHandler{wallet: wallet, withdrawals: withdrawals, reconcile: reconcile, currency: currency}
}

type entryFunc func(ctx context.Context, userID uuid.UUID, in ledger.EntryInput) (*ledger.Outcome, error)

// Credit POST /admin/wallets/:userId/credit
func (h *AdminWalletHandler) Credit(c *gin.Context) {
	h.applyEntry(c, h.wallet.Credit)
}

// AddPending POST /admin/wallets/:userId/pending
func (h *AdminWalletHandler) AddPending(c *gin.Context) {
	h.applyEntry(c, h.wallet.AddPending)
}

// ReleasePending POST /admin/wallets/:userId/release
func (h *AdminWalletHandler) ReleasePending(c *gin.Context) {
	h.applyEntry(c, h.wallet.ReleasePending)
}

func (h *AdminWalletHandler) applyEntry(c *gin.Context, apply entryFunc) {
	userID, err := common.ParseUUIDParam(c, "userId")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var req dto.LedgerEntryRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}
	amount, err := req.Minor()
	if err != nil {
		common.Fail(c, err)
		return
	}

	in := ledger.EntryInput{
		Amount:         amount,
		Description:    req.Description,
		Metadata:       models.Metadata(req.Metadata),
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.IdempotencyKey == "" {
		in.IdempotencyKey = c.GetHeader(idempotencyHeader)
	}
	if req.RelatedKind != "" && req.RelatedID != "" {
		in.Related = &models.RelatedEntity{Kind: req.RelatedKind, ID: req.RelatedID}
	}

	out, err := apply(c.Request.Context(), userID, in)
	if err != nil {
		common.Fail(c, err)
		return
	}
	h.respondOutcome(c, out)
}

func (h *AdminWalletHandler) respondOutcome(c *gin.Context, out *ledger.Outcome) {
	resp := dto.LedgerEntryResponse{
		Replayed: out.Replayed,
		Balance:  dto.NewBalanceResponse(out.Account, h.currency),
	}
	if out.Primary != nil {
		resp.Transaction = dto.NewTransactionResponse(*out.Primary)
	}
	status := http.StatusCreated
	if out.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// UpdateWithdrawalStatus PUT /admin/wallets/:userId/withdrawals/:id/status
func (h *AdminWalletHandler) UpdateWithdrawalStatus(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "userId")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var req dto.UpdateWithdrawalStatusRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	ctx := c.Request.Context()
	var w *models.WithdrawalRequest
	switch req.Status {
	case models.WithdrawalStatusProcessing:
		processing, dest, err := h.withdrawals.MarkProcessing(ctx, userID, id, req.Note)
		if err != nil {
			common.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"withdrawal":  dto.NewWithdrawalResponse(processing),
			"destination": dest,
		})
		return
	case models.WithdrawalStatusCompleted:
		w, err = h.withdrawals.Complete(ctx, userID, id, req.Note)
	case models.WithdrawalStatusFailed:
		w, err = h.withdrawals.Fail(ctx, userID, id, req.Note)
	default:
		w, err = h.withdrawals.Cancel(ctx, userID, id, req.Note)
	}
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewWithdrawalResponse(w))
}

// SettleWithdrawal POST /admin/wallets/:userId/withdrawals/settle
func (h *AdminWalletHandler) SettleWithdrawal(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "userId")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var req dto.SettleWithdrawalRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}
	txID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, common.ErrInvalidUUID.Error())
		return
	}

	out, err := h.withdrawals.Settle(c.Request.Context(), userID, txID, req.Outcome, req.Note)
	if err != nil {
		common.Fail(c, err)
		return
	}
	h.respondOutcome(c, out)
}

// Reconcile POST /admin/wallets/:userId/reconcile
func (h *AdminWalletHandler) Reconcile(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "userId")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.reconcile.Reconcile(c.Request.Context(), userID)
	if err != nil {
		if report == nil {
			common.Fail(c, err)
			return
		}
		// Сверка не удалась, но статус failed уже записан: отдаём отчёт.
		c.JSON(http.StatusBadGateway, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ReconcileAll POST /admin/wallets/reconcile
func (h *AdminWalletHandler) ReconcileAll(c *gin.Context) {
	reports, err := h.reconcile.ReconcileAll(c.Request.Context())
	if err != nil && reports == nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reports, "total": len(reports)})
}

// Health GET /admin/wallets/:userId/health
func (h *AdminWalletHandler) Health(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "userId")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.reconcile.Health(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
