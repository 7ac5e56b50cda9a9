package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lsp-backend/internal/domain"
	"lsp-backend/internal/jsonrpc"
	"lsp-backend/internal/metrics"
)

var (
	ErrPaymentRegression = errors.New("payment state regression")
	ErrSecretNotFound    = errors.New("hold invoice secret not found")
)

// reconcile brings the stored order in line with what the node reports.
// Steps run in a fixed order and each one sees the result of the previous.
// The caller holds the order's lock.
func (s *OrderService) reconcile(ctx context.Context, orderID string) error {
	o, ok, err := s.Repo.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if !ok {
		return jsonrpc.NewError(jsonrpc.KindOrderNotFound, nil)
	}

	if o.Payment.State == domain.PaymentExpectPayment {
		if o, err = s.checkHoldInvoice(ctx, o); err != nil {
			return err
		}
		if o.Payment.State == domain.PaymentExpectPayment {
			if o.Payment.OnchainPayment == nil {
				o, err = s.scanOnchain(ctx, o)
			} else if !o.Payment.OnchainPayment.Confirmed {
				o, err = s.recheckOnchain(ctx, o)
			}
			if err != nil {
				return err
			}
		}
	}

	if o.Channel == nil && (o.Payment.State == domain.PaymentHold || o.Payment.State == domain.PaymentPaid) {
		if o, err = s.openChannel(ctx, o); err != nil {
			return err
		}
	}

	// A channel recorded while the invoice is still held means an earlier
	// settle failed; only the settle is retried.
	if o.Payment.State == domain.PaymentHold && o.Channel != nil {
		if _, err = s.settle(ctx, o); err != nil {
			return err
		}
	}
	return nil
}

func (s *OrderService) checkHoldInvoice(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	secret, ok, err := s.Repo.GetSecret(ctx, o.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load hold invoice secret: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("order %s: %w", o.OrderID, ErrSecretNotFound)
	}
	state, err := s.Node.LookupInvoiceState(ctx, secret.PaymentHash)
	if err != nil {
		return nil, fmt.Errorf("lookup invoice: %w", err)
	}
	if state != domain.InvoiceAccepted {
		return o, nil
	}
	return s.transition(ctx, o.OrderID, domain.PaymentHold, func(cur *domain.Order) {})
}

func (s *OrderService) scanOnchain(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	txs, err := s.Node.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	for _, tx := range txs {
		out, ok := matchOutput(tx, o.Payment.OnchainAddress)
		if !ok {
			continue
		}
		payment := &domain.OnchainPayment{
			Outpoint:  fmt.Sprintf("%s:%d", tx.TxHash, out.OutputIndex),
			AmountSat: out.AmountSat,
			Confirmed: paymentConfirmed(o, tx.NumConfirmations, out.AmountSat),
		}
		if payment.Confirmed {
			return s.transition(ctx, o.OrderID, domain.PaymentPaid, func(cur *domain.Order) {
				cur.Payment.OnchainPayment = payment
			})
		}
		updated, err := s.Repo.Update(ctx, o.OrderID, func(cur *domain.Order) error {
			if cur.Payment.OnchainPayment == nil {
				cur.Payment.OnchainPayment = payment
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("save onchain payment: %w", err)
		}
		s.Log.Info().
			Str("order_id", o.OrderID).
			Str("outpoint", payment.Outpoint).
			Str("sat", payment.AmountSat.String()).
			Msg("Unconfirmed onchain payment seen")
		return updated, nil
	}
	return o, nil
}

func (s *OrderService) recheckOnchain(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	txid, _, err := splitOutpoint(o.Payment.OnchainPayment.Outpoint)
	if err != nil {
		return nil, err
	}
	txs, err := s.Node.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	i := slices.IndexFunc(txs, func(tx domain.OnchainTransaction) bool { return tx.TxHash == txid })
	if i < 0 {
		return o, nil
	}
	tx := txs[i]
	amount := o.Payment.OnchainPayment.AmountSat
	if out, ok := matchOutput(tx, o.Payment.OnchainAddress); ok {
		amount = out.AmountSat
	}
	if !paymentConfirmed(o, tx.NumConfirmations, amount) {
		return o, nil
	}
	return s.transition(ctx, o.OrderID, domain.PaymentPaid, func(cur *domain.Order) {
		if cur.Payment.OnchainPayment == nil {
			cur.Payment.OnchainPayment = &domain.OnchainPayment{Outpoint: o.Payment.OnchainPayment.Outpoint}
		}
		cur.Payment.OnchainPayment.AmountSat = amount
		cur.Payment.OnchainPayment.Confirmed = true
	})
}

func (s *OrderService) openChannel(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	point, err := s.Node.OpenChannel(ctx, domain.OpenChannelRequest{
		NodePubkey:  o.ClientNodePubkey,
		FundingSat:  o.LSPBalanceSat.Add(o.ClientBalanceSat).IntPart(),
		PushSat:     o.ClientBalanceSat.IntPart(),
		Private:     !o.AnnounceChannel,
		SatPerVbyte: ChannelFeeSatPerVbyte,
	})
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	now := s.now()
	channel := &domain.Channel{
		FundedAt:        now,
		FundingOutpoint: point.String(),
		ExpiresAt:       now.Add(time.Duration(o.ChannelExpiryBlocks) * BlockInterval),
	}
	updated, err := s.Repo.Update(ctx, o.OrderID, func(cur *domain.Order) error {
		if cur.Channel != nil {
			return fmt.Errorf("order %s already has channel %s", cur.OrderID, cur.Channel.FundingOutpoint)
		}
		cur.Channel = channel
		return nil
	})
	if err != nil {
		s.Log.Error().Err(err).
			Str("order_id", o.OrderID).
			Str("funding_outpoint", channel.FundingOutpoint).
			Msg("Channel opened but not recorded")
		return nil, fmt.Errorf("save channel: %w", err)
	}
	metrics.ObserveChannelOpened()
	s.Log.Info().
		Str("order_id", o.OrderID).
		Str("funding_outpoint", channel.FundingOutpoint).
		Msg("Channel opened")
	return updated, nil
}

func (s *OrderService) settle(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	secret, ok, err := s.Repo.GetSecret(ctx, o.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load hold invoice secret: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("order %s: %w", o.OrderID, ErrSecretNotFound)
	}
	if err := s.Node.SettleInvoice(ctx, secret.Preimage); err != nil {
		return nil, fmt.Errorf("settle invoice: %w", err)
	}
	s.Log.Info().Str("order_id", o.OrderID).Msg("Hold invoice settled")
	return s.transition(ctx, o.OrderID, domain.PaymentPaid, func(cur *domain.Order) {})
}

// transition moves the payment to state "to" and applies mutate in the same
// store update. Moving backwards is refused.
func (s *OrderService) transition(ctx context.Context, orderID string, to domain.PaymentState, mutate func(*domain.Order)) (*domain.Order, error) {
	var from domain.PaymentState
	updated, err := s.Repo.Update(ctx, orderID, func(cur *domain.Order) error {
		from = cur.Payment.State
		if to.Rank() < from.Rank() {
			return fmt.Errorf("%w: %s -> %s", ErrPaymentRegression, from, to)
		}
		wasConfirmed := cur.Payment.OnchainPayment != nil && cur.Payment.OnchainPayment.Confirmed
		mutate(cur)
		if wasConfirmed && (cur.Payment.OnchainPayment == nil || !cur.Payment.OnchainPayment.Confirmed) {
			return fmt.Errorf("%w: onchain payment lost its confirmation", ErrPaymentRegression)
		}
		cur.Payment.State = to
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save payment state: %w", err)
	}
	if from != to {
		metrics.ObservePaymentTransition(string(to))
		s.Log.Info().
			Str("order_id", orderID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("Payment state changed")
	}
	return updated, nil
}

// matchOutput finds the output paying address. Transactions that list the
// address only among their destinations fall back to the first output owned
// by the node, valued at the transaction amount.
func matchOutput(tx domain.OnchainTransaction, address string) (domain.TxOutput, bool) {
	if address == "" {
		return domain.TxOutput{}, false
	}
	for _, out := range tx.Outputs {
		if out.Address == address {
			return out, true
		}
	}
	if !slices.Contains(tx.DestinationAddresses, address) {
		return domain.TxOutput{}, false
	}
	for _, out := range tx.Outputs {
		if out.IsOurAddress {
			out.AmountSat = tx.AmountSat
			return out, true
		}
	}
	return domain.TxOutput{}, false
}

func paymentConfirmed(o *domain.Order, confirmations int32, amount decimal.Decimal) bool {
	return confirmations >= 0 &&
		uint32(confirmations) >= o.Payment.MinOnchainPaymentConfirmations &&
		amount.GreaterThanOrEqual(o.Payment.OrderTotalSat)
}

func splitOutpoint(outpoint string) (string, uint32, error) {
	i := strings.LastIndexByte(outpoint, ':')
	if i <= 0 {
		return "", 0, fmt.Errorf("malformed outpoint %q", outpoint)
	}
	index, err := strconv.ParseUint(outpoint[i+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("malformed outpoint %q: %w", outpoint, err)
	}
	return outpoint[:i], uint32(index), nil
}
