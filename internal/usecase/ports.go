package usecase

import (
	"context"

	"lsp-backend/internal/domain"
)

// LightningNode is the subset of the operator's node used to sell channels.
type LightningNode interface {
	ListPeers(ctx context.Context) ([]domain.Peer, error)
	AddHoldInvoice(ctx context.Context, req domain.HoldInvoiceRequest) (string, error)
	NewAddress(ctx context.Context) (string, error)
	LookupInvoiceState(ctx context.Context, paymentHash []byte) (domain.InvoiceState, error)
	ListTransactions(ctx context.Context) ([]domain.OnchainTransaction, error)
	OpenChannel(ctx context.Context, req domain.OpenChannelRequest) (domain.ChannelPoint, error)
	SettleInvoice(ctx context.Context, preimage []byte) error
}

// OrderRepo stores orders and their hold invoice secrets. Update runs
// load-mutate-store atomically for one order id.
type OrderRepo interface {
	Create(ctx context.Context, o *domain.Order, secret domain.HoldInvoiceSecret) error
	Get(ctx context.Context, id string) (*domain.Order, bool, error)
	GetSecret(ctx context.Context, id string) (*domain.HoldInvoiceSecret, bool, error)
	Update(ctx context.Context, id string, fn func(*domain.Order) error) (*domain.Order, error)
}
