package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderState string

const (
	OrderCreated OrderState = "CREATED"
)

type PaymentState string

const (
	PaymentExpectPayment PaymentState = "EXPECT_PAYMENT"
	PaymentHold          PaymentState = "HOLD"
	PaymentPaid          PaymentState = "PAID"
)

// Rank orders payment states so transitions can be checked for regressions.
func (s PaymentState) Rank() int {
	switch s {
	case PaymentExpectPayment:
		return 0
	case PaymentHold:
		return 1
	case PaymentPaid:
		return 2
	default:
		return -1
	}
}

// MinFeeFor0Conf is advertised on every order; zero-conf funding is not offered.
const MinFeeFor0Conf = 253

type OnchainPayment struct {
	Outpoint  string          `json:"outpoint"`
	AmountSat decimal.Decimal `json:"sat"`
	Confirmed bool            `json:"confirmed"`
}

type Payment struct {
	State                          PaymentState    `json:"state"`
	FeeTotalSat                    decimal.Decimal `json:"fee_total_sat"`
	OrderTotalSat                  decimal.Decimal `json:"order_total_sat"`
	Bolt11Invoice                  string          `json:"bolt11_invoice"`
	OnchainAddress                 string          `json:"onchain_address"`
	MinOnchainPaymentConfirmations uint32          `json:"min_onchain_payment_confirmations"`
	MinFeeFor0Conf                 uint32          `json:"min_fee_for_0conf"`
	OnchainPayment                 *OnchainPayment `json:"onchain_payment"`
}

type Channel struct {
	FundedAt        time.Time `json:"funded_at"`
	FundingOutpoint string    `json:"funding_outpoint"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type Order struct {
	OrderID                      string          `json:"order_id"`
	LSPBalanceSat                decimal.Decimal `json:"lsp_balance_sat"`
	ClientBalanceSat             decimal.Decimal `json:"client_balance_sat"`
	ClientNodePubkey             string          `json:"client_node_pubkey"`
	RequiredChannelConfirmations uint32          `json:"required_channel_confirmations"`
	FundingConfirmsWithinBlocks  uint32          `json:"funding_confirms_within_blocks"`
	ChannelExpiryBlocks          uint32          `json:"channel_expiry_blocks"`
	Token                        string          `json:"token"`
	RefundOnchainAddress         string          `json:"refund_onchain_address,omitempty"`
	CreatedAt                    time.Time       `json:"created_at"`
	ExpiresAt                    time.Time       `json:"expires_at"`
	AnnounceChannel              bool            `json:"announce_channel"`
	OrderState                   OrderState      `json:"order_state"`
	Payment                      Payment         `json:"payment"`
	Channel                      *Channel        `json:"channel"`
}

// Clone returns a deep copy so stored orders are never aliased by callers.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	if o.Payment.OnchainPayment != nil {
		op := *o.Payment.OnchainPayment
		cp.Payment.OnchainPayment = &op
	}
	if o.Channel != nil {
		ch := *o.Channel
		cp.Channel = &ch
	}
	return &cp
}

// HoldInvoiceSecret pairs an order with the preimage that settles its hold
// invoice. It never leaves the server.
type HoldInvoiceSecret struct {
	OrderID     string
	Preimage    []byte
	PaymentHash []byte
}
