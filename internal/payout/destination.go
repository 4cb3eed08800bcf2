package payout

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/ignatzorin/freelance-wallet/internal/models"
	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
)

const nonceSize = 24

var (
	upiPattern      = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z][a-zA-Z0-9]{1,63}$`)
	accountPattern  = regexp.MustCompile(`^[A-Z0-9]{8,34}$`)
	bankCodePattern = regexp.MustCompile(`^[A-Z0-9]{4,11}$`)

	ErrSealedCorrupted = errors.New("payout: sealed destination is corrupted")
)

// Destination реквизиты выплаты после нормализации.
type Destination struct {
	Type string `json:"type"`
	// Account номер счёта или UPI-идентификатор
	Account string `json:"account"`
	// BankCode БИК, IFSC или SWIFT, только для банковского счёта
	BankCode string `json:"bank_code,omitempty"`
	Holder   string `json:"holder,omitempty"`
}

// Parse проверяет и нормализует реквизиты.
func Parse(kind, account, bankCode, holder string) (Destination, error) {
	holder = strings.TrimSpace(holder)
	switch kind {
	case models.DestinationBankAccount:
		acc := normalizeAccount(account)
		if !accountPattern.MatchString(acc) {
			return Destination{}, apperror.New(apperror.ErrCodeValidation, "некорректный номер счёта")
		}
		code := strings.ToUpper(strings.TrimSpace(bankCode))
		if !bankCodePattern.MatchString(code) {
			return Destination{}, apperror.New(apperror.ErrCodeValidation, "некорректный код банка")
		}
		return Destination{Type: kind, Account: acc, BankCode: code, Holder: holder}, nil
	case models.DestinationUPI:
		upi := strings.ToLower(strings.TrimSpace(account))
		if !upiPattern.MatchString(upi) {
			return Destination{}, apperror.New(apperror.ErrCodeValidation, "некорректный UPI идентификатор")
		}
		return Destination{Type: kind, Account: upi, Holder: holder}, nil
	default:
		return Destination{}, apperror.Newf(apperror.ErrCodeValidation, "неизвестный тип реквизитов: %s", kind)
	}
}

// Masked версия для отображения: последние четыре символа счёта или начало UPI.
func (d Destination) Masked() string {
	switch d.Type {
	case models.DestinationUPI:
		at := strings.LastIndex(d.Account, "@")
		if at <= 0 {
			return "***"
		}
		name := d.Account[:at]
		visible := 2
		if len(name) <= visible {
			visible = 1
		}
		return name[:visible] + strings.Repeat("*", 3) + d.Account[at:]
	default:
		if len(d.Account) <= 4 {
			return "****"
		}
		return "****" + d.Account[len(d.Account)-4:]
	}
}

// Sealer шифрует полные реквизиты и считает их отпечаток. Ключи выводятся из секрета.
type Sealer struct {
	sealKey        [32]byte
	fingerprintKey [32]byte
}

func NewSealer(secret string) (*Sealer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("payout: secret is too short (%d bytes)", len(secret))
	}
	return &Sealer{
		sealKey:        blake2b.Sum256([]byte("seal:" + secret)),
		fingerprintKey: blake2b.Sum256([]byte("fingerprint:" + secret)),
	}, nil
}

// Fingerprint стабильный отпечаток реквизитов для сравнения без расшифровки.
func (s *Sealer) Fingerprint(d Destination) string {
	h, err := blake2b.New256(s.fingerprintKey[:])
	if err != nil {
		// ключ фиксированной длины 32 байта, ошибки быть не может
		panic(err)
	}
	h.Write([]byte(d.Type + "|" + d.BankCode + "|" + d.Account))
	return hex.EncodeToString(h.Sum(nil))
}

// Seal шифрует реквизиты: nonce || secretbox.
func (s *Sealer) Seal(d Destination) ([]byte, error) {
	plain, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("payout: marshal destination %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("payout: nonce %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.sealKey), nil
}

// Open расшифровывает реквизиты для обработки выплаты.
func (s *Sealer) Open(sealed []byte) (Destination, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return Destination{}, ErrSealedCorrupted
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.sealKey)
	if !ok {
		return Destination{}, ErrSealedCorrupted
	}
	var d Destination
	if err := json.Unmarshal(plain, &d); err != nil {
		return Destination{}, ErrSealedCorrupted
	}
	return d, nil
}

func normalizeAccount(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if r == ' ' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
