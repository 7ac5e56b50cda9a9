package domain

import (
	"strconv"

	"github.com/shopspring/decimal"
)

type InvoiceState string

const (
	InvoiceOpen     InvoiceState = "OPEN"
	InvoiceSettled  InvoiceState = "SETTLED"
	InvoiceCanceled InvoiceState = "CANCELED"
	InvoiceAccepted InvoiceState = "ACCEPTED"
)

type Peer struct {
	Pubkey  string
	Address string
}

type TxOutput struct {
	Address      string
	OutputIndex  uint32
	AmountSat    decimal.Decimal
	IsOurAddress bool
}

type OnchainTransaction struct {
	TxHash               string
	AmountSat            decimal.Decimal
	NumConfirmations     int32
	Outputs              []TxOutput
	DestinationAddresses []string
}

type HoldInvoiceRequest struct {
	Memo          string
	PaymentHash   []byte
	AmountSat     int64
	ExpirySeconds int64
	Private       bool
}

type OpenChannelRequest struct {
	NodePubkey  string
	FundingSat  int64
	PushSat     int64
	Private     bool
	SatPerVbyte uint64
}

type ChannelPoint struct {
	FundingTxid string
	OutputIndex uint32
}

func (p ChannelPoint) String() string {
	return p.FundingTxid + ":" + strconv.FormatUint(uint64(p.OutputIndex), 10)
}
