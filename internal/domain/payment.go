package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type PaymentMethod string

const (
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodOther    PaymentMethod = "other"
)

// NormalizePaymentMethod maps free-form method labels onto the fixed set.
// Unrecognized labels are still counted, as other.
func NormalizePaymentMethod(raw string) PaymentMethod {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "card", "credit_card", "creditcard", "카드", "신용카드":
		return PaymentMethodCard
	case "cash", "현금":
		return PaymentMethodCash
	case "transfer", "bank_transfer", "account_transfer", "계좌이체", "이체":
		return PaymentMethodTransfer
	default:
		return PaymentMethodOther
	}
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCompleted PaymentStatus = "completed"
)

func (s PaymentStatus) Settled() bool {
	return s == PaymentStatusPaid || s == PaymentStatusCompleted
}

// PaymentMode is either SimplePayment or SplitPayment.
type PaymentMode interface {
	paymentMode()
}

type SimplePayment struct {
	Method      PaymentMethod
	Status      PaymentStatus
	CompletedAt time.Time
}

// SplitPayment is a two-installment schedule. SecondAmount nil means
// total minus FirstAmount; a zero SecondPaidAt falls back to CompletedAt.
type SplitPayment struct {
	Status       PaymentStatus
	CompletedAt  time.Time
	FirstMethod  PaymentMethod
	FirstAmount  int64
	FirstPaidAt  time.Time
	SecondMethod PaymentMethod
	SecondAmount *int64
	SecondPaidAt time.Time
}

func (SimplePayment) paymentMode() {}
func (SplitPayment) paymentMode()  {}

func (p SplitPayment) SecondAmountFor(total int64) int64 {
	if p.SecondAmount != nil {
		return *p.SecondAmount
	}
	return total - p.FirstAmount
}

func (p SplitPayment) EffectiveSecondPaidAt() time.Time {
	if !p.SecondPaidAt.IsZero() {
		return p.SecondPaidAt
	}
	return p.CompletedAt
}

func PaymentStatusOf(p PaymentMode) PaymentStatus {
	switch v := p.(type) {
	case SimplePayment:
		return v.Status
	case SplitPayment:
		return v.Status
	default:
		return PaymentStatusPending
	}
}

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusAccepted  TransferStatus = "accepted"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusRejected  TransferStatus = "rejected"
)

type AmountSplit struct {
	OrderBranchPercent   float64 `json:"order_branch_percent"`
	ProcessBranchPercent float64 `json:"process_branch_percent"`
}

// TransferState is either NoTransfer or Transferred. A nil TransferState is NoTransfer.
type TransferState interface {
	transferState()
}

type NoTransfer struct{}

type Transferred struct {
	Status             TransferStatus
	ProcessBranchName  string
	OriginalBranchName string
	Split              AmountSplit
}

func (NoTransfer) transferState()  {}
func (Transferred) transferState() {}

// Valid reports whether the transfer counts for revenue splitting.
func (t Transferred) Valid() bool {
	return t.Status == TransferStatusAccepted || t.Status == TransferStatusCompleted
}

type paymentEnvelope struct {
	Type         string        `json:"type"`
	Method       PaymentMethod `json:"method,omitempty"`
	Status       PaymentStatus `json:"status"`
	CompletedAt  time.Time     `json:"completed_at,omitzero"`
	FirstMethod  PaymentMethod `json:"first_method,omitempty"`
	FirstAmount  int64         `json:"first_amount,omitempty"`
	FirstPaidAt  time.Time     `json:"first_paid_at,omitzero"`
	SecondMethod PaymentMethod `json:"second_method,omitempty"`
	SecondAmount *int64        `json:"second_amount,omitempty"`
	SecondPaidAt time.Time     `json:"second_paid_at,omitzero"`
}

// EncodePayment serializes a PaymentMode with a type discriminator for storage.
func EncodePayment(p PaymentMode) (string, error) {
	var env paymentEnvelope
	switch v := p.(type) {
	case SimplePayment:
		env = paymentEnvelope{Type: "simple", Method: v.Method, Status: v.Status, CompletedAt: v.CompletedAt}
	case SplitPayment:
		env = paymentEnvelope{
			Type:         "split",
			Status:       v.Status,
			CompletedAt:  v.CompletedAt,
			FirstMethod:  v.FirstMethod,
			FirstAmount:  v.FirstAmount,
			FirstPaidAt:  v.FirstPaidAt,
			SecondMethod: v.SecondMethod,
			SecondAmount: v.SecondAmount,
			SecondPaidAt: v.SecondPaidAt,
		}
	case nil:
		env = paymentEnvelope{Type: "simple", Status: PaymentStatusPending}
	default:
		return "", fmt.Errorf("unknown payment mode %T", p)
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func DecodePayment(raw string) (PaymentMode, error) {
	if strings.TrimSpace(raw) == "" {
		return SimplePayment{Status: PaymentStatusPending}, nil
	}
	var env paymentEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case "split":
		return SplitPayment{
			Status:       env.Status,
			CompletedAt:  env.CompletedAt,
			FirstMethod:  env.FirstMethod,
			FirstAmount:  env.FirstAmount,
			FirstPaidAt:  env.FirstPaidAt,
			SecondMethod: env.SecondMethod,
			SecondAmount: env.SecondAmount,
			SecondPaidAt: env.SecondPaidAt,
		}, nil
	case "simple", "":
		return SimplePayment{Method: env.Method, Status: env.Status, CompletedAt: env.CompletedAt}, nil
	default:
		return nil, fmt.Errorf("unknown payment type %q", env.Type)
	}
}

type transferEnvelope struct {
	Status             TransferStatus `json:"status"`
	ProcessBranchName  string         `json:"process_branch_name"`
	OriginalBranchName string         `json:"original_branch_name"`
	Split              AmountSplit    `json:"amount_split"`
}

// EncodeTransfer returns an empty string for NoTransfer.
func EncodeTransfer(t TransferState) (string, error) {
	v, ok := t.(Transferred)
	if !ok {
		return "", nil
	}
	payload, err := json.Marshal(transferEnvelope{
		Status:             v.Status,
		ProcessBranchName:  v.ProcessBranchName,
		OriginalBranchName: v.OriginalBranchName,
		Split:              v.Split,
	})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func DecodeTransfer(raw string) (TransferState, error) {
	if strings.TrimSpace(raw) == "" {
		return NoTransfer{}, nil
	}
	var env transferEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, err
	}
	return Transferred{
		Status:             env.Status,
		ProcessBranchName:  env.ProcessBranchName,
		OriginalBranchName: env.OriginalBranchName,
		Split:              env.Split,
	}, nil
}
