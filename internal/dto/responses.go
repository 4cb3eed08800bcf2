package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-wallet/internal/domain/valueobject"
	"github.com/ignatzorin/freelance-wallet/internal/models"
)

// Amount сумма в ответе: минимальные единицы и строка для отображения.
type Amount struct {
	Minor   int64  `json:"minor"`
	Display string `json:"display"`
}

func NewAmount(minor int64) Amount {
	return Amount{Minor: minor, Display: valueobject.FormatMinor(minor)}
}

// BalanceResponse балансы и итоги кошелька.
type BalanceResponse struct {
	UserID         uuid.UUID  `json:"user_id"`
	Currency       string     `json:"currency"`
	Balance        Amount     `json:"balance"`
	PendingAmount  Amount     `json:"pending_amount"`
	TotalEarned    Amount     `json:"total_earned"`
	TotalWithdrawn Amount     `json:"total_withdrawn"`
	LastUpdated    time.Time  `json:"last_updated"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	LastSyncStatus *string    `json:"last_sync_status,omitempty"`
}

func NewBalanceResponse(acc *models.Account, currency string) BalanceResponse {
	return BalanceResponse{
		UserID:         acc.UserID,
		Currency:       currency,
		Balance:        NewAmount(acc.Balance),
		PendingAmount:  NewAmount(acc.PendingAmount),
		TotalEarned:    NewAmount(acc.TotalEarned),
		TotalWithdrawn: NewAmount(acc.TotalWithdrawn),
		LastUpdated:    acc.LastUpdated,
		LastSyncedAt:   acc.LastSyncedAt,
		LastSyncStatus: acc.LastSyncStatus,
	}
}

// TransactionResponse запись журнала.
type TransactionResponse struct {
	ID            uuid.UUID             `json:"id"`
	Seq           int64                 `json:"seq"`
	Type          string                `json:"type"`
	Amount        Amount                `json:"amount"`
	Description   string                `json:"description"`
	Status        string                `json:"status"`
	RelatedEntity *models.RelatedEntity `json:"related_entity,omitempty"`
	Metadata      models.Metadata       `json:"metadata,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	SettledAt     *time.Time            `json:"settled_at,omitempty"`
}

func NewTransactionResponse(t models.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            t.ID,
		Seq:           t.Seq,
		Type:          t.Type,
		Amount:        NewAmount(t.Amount),
		Description:   t.Description,
		Status:        t.Status,
		RelatedEntity: t.RelatedEntity,
		Metadata:      t.Metadata,
		CreatedAt:     t.CreatedAt,
		SettledAt:     t.SettledAt,
	}
}

func NewTransactionList(txs []models.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, NewTransactionResponse(t))
	}
	return out
}

// LedgerEntryResponse результат начисления.
type LedgerEntryResponse struct {
	Replayed    bool                `json:"replayed"`
	Transaction TransactionResponse `json:"transaction"`
	Balance     BalanceResponse     `json:"balance"`
}

// WithdrawalResponse заявка на вывод с замаскированными реквизитами.
type WithdrawalResponse struct {
	ID                uuid.UUID            `json:"id"`
	TransactionID     uuid.UUID            `json:"transaction_id"`
	Amount            Amount               `json:"amount"`
	DestinationType   string               `json:"destination_type"`
	DestinationMasked string               `json:"destination_masked"`
	Status            string               `json:"status"`
	StatusHistory     models.StatusHistory `json:"status_history"`
	FailureReason     *string              `json:"failure_reason,omitempty"`
	RequestedAt       time.Time            `json:"requested_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
	Replayed          bool                 `json:"replayed,omitempty"`
}

func NewWithdrawalResponse(w *models.WithdrawalRequest) WithdrawalResponse {
	return WithdrawalResponse{
		ID:                w.ID,
		TransactionID:     w.TransactionID,
		Amount:            NewAmount(w.Amount),
		DestinationType:   w.DestinationType,
		DestinationMasked: w.DestinationMasked,
		Status:            w.Status,
		StatusHistory:     w.StatusHistory,
		FailureReason:     w.FailureReason,
		RequestedAt:       w.RequestedAt,
		UpdatedAt:         w.UpdatedAt,
	}
}

// PendingEarningResponse строка проекции ожидающих выплат.
type PendingEarningResponse struct {
	PaymentID uuid.UUID  `json:"payment_id"`
	ProjectID *uuid.UUID `json:"project_id,omitempty"`
	Type      string     `json:"type"`
	Amount    Amount     `json:"amount"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// PendingEarningsResponse проекция ожидающих выплат и их сумма.
type PendingEarningsResponse struct {
	Items []PendingEarningResponse `json:"items"`
	Total Amount                   `json:"total"`
}

func NewPendingEarningsResponse(items []models.PendingEarning, total int64) PendingEarningsResponse {
	out := PendingEarningsResponse{Items: make([]PendingEarningResponse, 0, len(items)), Total: NewAmount(total)}
	for _, it := range items {
		out.Items = append(out.Items, PendingEarningResponse{
			PaymentID: it.PaymentID,
			ProjectID: it.ProjectID,
			Type:      it.Type,
			Amount:    NewAmount(it.Amount),
			Status:    it.Status,
			CreatedAt: it.CreatedAt,
		})
	}
	return out
}

// ListResponse список с пагинацией.
type ListResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

func NewPagination(total, limit, offset int) Pagination {
	return Pagination{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string           `json:"error"`
	Code    string           `json:"code,omitempty"`
	Details map[string]int64 `json:"details,omitempty"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
