package dto

import (
	"github.com/ignatzorin/freelance-wallet/internal/domain/valueobject"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
)

// MoneyInput сумма в запросе: либо amount в минимальных единицах, либо amount_major строкой ("150.50").
type MoneyInput struct {
	Amount      int64  `json:"amount"`
	AmountMajor string `json:"amount_major"`
}

// Minor возвращает сумму в минимальных единицах.
func (m MoneyInput) Minor() (int64, error) {
	switch {
	case m.AmountMajor != "" && m.Amount != 0:
		return 0, apperror.New(apperror.ErrCodeValidation, "укажите только одно из полей amount и amount_major")
	case m.AmountMajor != "":
		return valueobject.ParseMajor(m.AmountMajor)
	default:
		return m.Amount, nil
	}
}

// CreateWithdrawalRequest запрос на вывод средств.
type CreateWithdrawalRequest struct {
	MoneyInput
	DestinationType string `json:"destination_type" binding:"required,oneof=bank_account upi"`
	Account         string `json:"account" binding:"required"`
	BankCode        string `json:"bank_code"`
	Holder          string `json:"holder"`
	IdempotencyKey  string `json:"idempotency_key" binding:"omitempty,max=128"`
}

// CancelWithdrawalRequest отмена заявки пользователем.
type CancelWithdrawalRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// UpdateWithdrawalStatusRequest смена статуса заявки администратором или шлюзом.
type UpdateWithdrawalStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=processing completed failed cancelled"`
	Note   string `json:"note" binding:"max=500"`
}

// SettleWithdrawalRequest колбэк шлюза по id транзакции вывода.
type SettleWithdrawalRequest struct {
	TransactionID string `json:"transaction_id" binding:"required,uuid"`
	Outcome       string `json:"outcome" binding:"required,oneof=completed failed cancelled"`
	Note          string `json:"note" binding:"max=500"`
}

// LedgerEntryRequest начисление от платёжного контура (credit, pending, release).
type LedgerEntryRequest struct {
	MoneyInput
	Description    string                 `json:"description" binding:"max=500"`
	RelatedKind    string                 `json:"related_kind" binding:"omitempty,oneof=payment project order"`
	RelatedID      string                 `json:"related_id" binding:"max=64"`
	Metadata       map[string]interface{} `json:"metadata"`
	IdempotencyKey string                 `json:"idempotency_key" binding:"omitempty,max=128"`
}
