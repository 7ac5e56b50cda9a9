package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/multimutex"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lsp-backend/internal/config"
	"lsp-backend/internal/domain"
	"lsp-backend/internal/jsonrpc"
)

const (
	// FlatFeeSat and FeePercent price every order:
	// fee = client_balance_sat * FeePercent / 100 + FlatFeeSat.
	FlatFeeSat = 5000
	FeePercent = "0.1"

	PreimageSize          = 20
	HoldInvoiceExpiry     = 3600 * time.Second
	OrderLifetime         = 24 * time.Hour
	BlockInterval         = 10 * time.Minute
	ChannelFeeSatPerVbyte = 1
)

type CreateOrderRequest struct {
	LSPBalanceSat                decimal.Decimal
	ClientBalanceSat             decimal.Decimal
	ClientNodePubkey             string
	RequiredChannelConfirmations *uint32
	FundingConfirmsWithinBlocks  *uint32
	ChannelExpiryBlocks          *uint32
	Token                        string
	RefundOnchainAddress         string
	AnnounceChannel              bool
}

type OrderService struct {
	Repo  OrderRepo
	Node  LightningNode
	LSP   *LSPService
	Clock clock.Clock
	Log   zerolog.Logger

	locks *multimutex.Mutex[string]
}

func NewOrderService(repo OrderRepo, node LightningNode, lsp *LSPService, clk clock.Clock, log zerolog.Logger) *OrderService {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &OrderService{
		Repo:  repo,
		Node:  node,
		LSP:   lsp,
		Clock: clk,
		Log:   log.With().Str("component", "orders").Logger(),
		locks: multimutex.NewMutex[string](),
	}
}

// Fee returns the fee charged for a channel with the given client balance.
func Fee(clientBalanceSat decimal.Decimal) decimal.Decimal {
	pct := decimal.RequireFromString(FeePercent)
	return clientBalanceSat.Mul(pct).Div(decimal.NewFromInt(100)).Add(decimal.NewFromInt(FlatFeeSat))
}

func (s *OrderService) Create(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	if req.ClientNodePubkey == "" {
		return nil, jsonrpc.Errorf(jsonrpc.KindInvalidParams, "Missing required parameter: %q", "client_node_pubkey")
	}
	opts := s.LSP.Options()
	if err := checkAgainstOptions(req, opts); err != nil {
		return nil, err
	}

	peers, err := s.Node.ListPeers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	if !hasPeer(peers, req.ClientNodePubkey) {
		return nil, jsonrpc.Errorf(jsonrpc.KindClientRejected, "Node specified by %q is not a connected peer", "client_node_pubkey")
	}

	fee := Fee(req.ClientBalanceSat)
	total := req.ClientBalanceSat.Add(fee)
	now := s.now()
	orderID := uuid.NewString()

	preimage := make([]byte, PreimageSize)
	if _, err := rand.Read(preimage); err != nil {
		return nil, fmt.Errorf("generate preimage: %w", err)
	}
	hash := sha256.Sum256(preimage)

	invoice, err := s.Node.AddHoldInvoice(ctx, domain.HoldInvoiceRequest{
		Memo:          "lsp-order-" + orderID,
		PaymentHash:   hash[:],
		AmountSat:     total.Ceil().IntPart(),
		ExpirySeconds: int64(HoldInvoiceExpiry / time.Second),
		Private:       !req.AnnounceChannel,
	})
	if err != nil {
		return nil, fmt.Errorf("add hold invoice: %w", err)
	}
	if invoice == "" {
		return nil, fmt.Errorf("add hold invoice: empty payment request")
	}

	address, err := s.Node.NewAddress(ctx)
	if err != nil {
		s.abandon(orderID, hash[:], err)
		return nil, fmt.Errorf("new address: %w", err)
	}
	if address == "" {
		s.abandon(orderID, hash[:], nil)
		return nil, fmt.Errorf("new address: empty address")
	}

	o := &domain.Order{
		OrderID:                      orderID,
		LSPBalanceSat:                req.LSPBalanceSat,
		ClientBalanceSat:             req.ClientBalanceSat,
		ClientNodePubkey:             req.ClientNodePubkey,
		RequiredChannelConfirmations: orDefault(req.RequiredChannelConfirmations, opts.MinRequiredChannelConfirmations),
		FundingConfirmsWithinBlocks:  orDefault(req.FundingConfirmsWithinBlocks, opts.MinFundingConfirmsWithinBlocks),
		ChannelExpiryBlocks:          orDefault(req.ChannelExpiryBlocks, opts.MaxChannelExpiryBlocks),
		Token:                        req.Token,
		RefundOnchainAddress:         req.RefundOnchainAddress,
		CreatedAt:                    now,
		ExpiresAt:                    now.Add(OrderLifetime),
		AnnounceChannel:              req.AnnounceChannel,
		OrderState:                   domain.OrderCreated,
		Payment: domain.Payment{
			State:                          domain.PaymentExpectPayment,
			FeeTotalSat:                    fee,
			OrderTotalSat:                  total,
			Bolt11Invoice:                  invoice,
			OnchainAddress:                 address,
			MinOnchainPaymentConfirmations: opts.MinOnchainPaymentConfirmations,
			MinFeeFor0Conf:                 domain.MinFeeFor0Conf,
		},
	}
	secret := domain.HoldInvoiceSecret{
		OrderID:     orderID,
		Preimage:    preimage,
		PaymentHash: hash[:],
	}
	if err := s.Repo.Create(ctx, o, secret); err != nil {
		s.abandon(orderID, hash[:], err)
		return nil, fmt.Errorf("save order: %w", err)
	}

	s.Log.Info().
		Str("order_id", orderID).
		Str("payment_hash", hex.EncodeToString(hash[:])).
		Str("order_total_sat", total.String()).
		Msg("Order created")
	return o.Clone(), nil
}

// Get reconciles the order's payment status with the node and returns the
// stored result. Reconciliation for one order id never runs concurrently.
func (s *OrderService) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	if _, ok, err := s.Repo.Get(ctx, orderID); err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	} else if !ok {
		return nil, jsonrpc.NewError(jsonrpc.KindOrderNotFound, nil)
	}

	s.locks.Lock(orderID)
	defer s.locks.Unlock(orderID)

	if err := s.reconcile(ctx, orderID); err != nil {
		return nil, err
	}

	o, ok, err := s.Repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if !ok {
		return nil, jsonrpc.NewError(jsonrpc.KindOrderNotFound, nil)
	}
	return o, nil
}

func (s *OrderService) now() time.Time {
	return s.Clock.Now().UTC().Truncate(time.Millisecond)
}

// abandon records a creation that failed after the hold invoice exists. The
// invoice is left to expire on the node.
func (s *OrderService) abandon(orderID string, paymentHash []byte, cause error) {
	s.Log.Warn().Err(cause).
		Str("order_id", orderID).
		Str("payment_hash", hex.EncodeToString(paymentHash)).
		Msg("Order creation abandoned after hold invoice was created")
}

func checkAgainstOptions(req CreateOrderRequest, opts config.LSPOptions) error {
	if req.LSPBalanceSat.GreaterThan(opts.MaxInitialLSPBalanceSat) {
		return optionMismatch("max_initial_lsp_balance_sat")
	}
	if req.ClientBalanceSat.GreaterThan(opts.MaxInitialClientBalanceSat) {
		return optionMismatch("max_initial_client_balance_sat")
	}
	if req.LSPBalanceSat.Add(req.ClientBalanceSat).GreaterThan(opts.MaxChannelBalanceSat) {
		return optionMismatch("max_channel_balance_sat")
	}
	if req.ChannelExpiryBlocks != nil && *req.ChannelExpiryBlocks > opts.MaxChannelExpiryBlocks {
		return optionMismatch("max_channel_expiry_blocks")
	}
	return nil
}

func optionMismatch(property string) error {
	return jsonrpc.NewError(jsonrpc.KindOptionMismatch, jsonrpc.Data{
		"property": property,
		"message":  fmt.Sprintf("Requested value exceeds %q", property),
	})
}

func hasPeer(peers []domain.Peer, pubkey string) bool {
	for _, p := range peers {
		if p.Pubkey == pubkey {
			return true
		}
	}
	return false
}

func orDefault(v *uint32, d uint32) uint32 {
	if v == nil {
		return d
	}
	return *v
}
