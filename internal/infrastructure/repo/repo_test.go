package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lsp-backend/internal/domain"
)

type orderRepo interface {
	Create(ctx context.Context, o *domain.Order, secret domain.HoldInvoiceSecret) error
	Get(ctx context.Context, id string) (*domain.Order, bool, error)
	GetSecret(ctx context.Context, id string) (*domain.HoldInvoiceSecret, bool, error)
	Update(ctx context.Context, id string, fn func(*domain.Order) error) (*domain.Order, error)
	Close() error
}

func testOrder() (*domain.Order, domain.HoldInvoiceSecret) {
	id := uuid.NewString()
	now := time.Date(2024, 5, 1, 12, 0, 0, 123000000, time.UTC)
	o := &domain.Order{
		OrderID:                     id,
		LSPBalanceSat:               decimal.NewFromInt(1000000),
		ClientBalanceSat:            decimal.NewFromInt(20000),
		ClientNodePubkey:            "02aa",
		FundingConfirmsWithinBlocks: 6,
		ChannelExpiryBlocks:         20160,
		CreatedAt:                   now,
		ExpiresAt:                   now.Add(24 * time.Hour),
		OrderState:                  domain.OrderCreated,
		Payment: domain.Payment{
			State:                          domain.PaymentExpectPayment,
			FeeTotalSat:                    decimal.NewFromInt(5020),
			OrderTotalSat:                  decimal.NewFromInt(25020),
			Bolt11Invoice:                  "lnbcrt1",
			OnchainAddress:                 "bcrt1qaddr",
			MinOnchainPaymentConfirmations: 1,
			MinFeeFor0Conf:                 domain.MinFeeFor0Conf,
		},
	}
	secret := domain.HoldInvoiceSecret{
		OrderID:     id,
		Preimage:    []byte("preimage-of-20-bytes"),
		PaymentHash: []byte(fmt.Sprintf("%-32s", id[:8])),
	}
	return o, secret
}

func jsonOf(t *testing.T, o *domain.Order) string {
	b, err := json.Marshal(o)
	require.NoError(t, err)
	return string(b)
}

func repos(t *testing.T) map[string]func(t *testing.T) orderRepo {
	out := map[string]func(t *testing.T) orderRepo{
		"memory": func(t *testing.T) orderRepo { return NewMemoryOrderRepo() },
		"sqlite": func(t *testing.T) orderRepo {
			db, err := OpenSQLite(filepath.Join(t.TempDir(), "lsp.db"))
			require.NoError(t, err)
			r, err := NewSQLiteOrderRepo(db)
			require.NoError(t, err)
			return r
		},
	}
	if dsn := os.Getenv("LSP_TEST_POSTGRES_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) orderRepo {
			r, err := NewPostgresOrderRepo(context.Background(), dsn)
			require.NoError(t, err)
			return r
		}
	}
	return out
}

func TestOrderRepo_CreateGet(t *testing.T) {
	for name, open := range repos(t) {
		t.Run(name, func(t *testing.T) {
			r := open(t)
			defer r.Close()
			ctx := context.Background()
			o, secret := testOrder()

			require.NoError(t, r.Create(ctx, o, secret))

			got, ok, err := r.Get(ctx, o.OrderID)
			require.NoError(t, err)
			require.True(t, ok)
			assert.JSONEq(t, jsonOf(t, o), jsonOf(t, got))

			s, ok, err := r.GetSecret(ctx, o.OrderID)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, secret.Preimage, s.Preimage)
			assert.Equal(t, secret.PaymentHash, s.PaymentHash)

			err = r.Create(ctx, o, secret)
			assert.True(t, errors.Is(err, domain.ErrOrderExists))
		})
	}
}

func TestOrderRepo_Missing(t *testing.T) {
	for name, open := range repos(t) {
		t.Run(name, func(t *testing.T) {
			r := open(t)
			defer r.Close()
			ctx := context.Background()

			got, ok, err := r.Get(ctx, "nope")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, got)

			s, ok, err := r.GetSecret(ctx, "nope")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, s)

			_, err = r.Update(ctx, "nope", func(*domain.Order) error { return nil })
			assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
		})
	}
}

func TestOrderRepo_Update(t *testing.T) {
	for name, open := range repos(t) {
		t.Run(name, func(t *testing.T) {
			r := open(t)
			defer r.Close()
			ctx := context.Background()
			o, secret := testOrder()
			require.NoError(t, r.Create(ctx, o, secret))

			updated, err := r.Update(ctx, o.OrderID, func(cur *domain.Order) error {
				cur.Payment.State = domain.PaymentHold
				cur.Channel = &domain.Channel{FundingOutpoint: "ab:0"}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, domain.PaymentHold, updated.Payment.State)

			got, _, err := r.Get(ctx, o.OrderID)
			require.NoError(t, err)
			assert.Equal(t, domain.PaymentHold, got.Payment.State)
			require.NotNil(t, got.Channel)
			assert.Equal(t, "ab:0", got.Channel.FundingOutpoint)
		})
	}
}

func TestOrderRepo_UpdateErrorLeavesOrder(t *testing.T) {
	for name, open := range repos(t) {
		t.Run(name, func(t *testing.T) {
			r := open(t)
			defer r.Close()
			ctx := context.Background()
			o, secret := testOrder()
			require.NoError(t, r.Create(ctx, o, secret))

			boom := errors.New("boom")
			_, err := r.Update(ctx, o.OrderID, func(cur *domain.Order) error {
				cur.Payment.State = domain.PaymentPaid
				return boom
			})
			assert.ErrorIs(t, err, boom)

			got, _, err := r.Get(ctx, o.OrderID)
			require.NoError(t, err)
			assert.Equal(t, domain.PaymentExpectPayment, got.Payment.State)
		})
	}
}

func TestOrderRepo_ConcurrentUpdates(t *testing.T) {
	for name, open := range repos(t) {
		t.Run(name, func(t *testing.T) {
			r := open(t)
			defer r.Close()
			ctx := context.Background()
			o, secret := testOrder()
			require.NoError(t, r.Create(ctx, o, secret))

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := r.Update(ctx, o.OrderID, func(cur *domain.Order) error {
						cur.FundingConfirmsWithinBlocks++
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			got, _, err := r.Get(ctx, o.OrderID)
			require.NoError(t, err)
			assert.Equal(t, uint32(26), got.FundingConfirmsWithinBlocks)
		})
	}
}

func TestMemoryOrderRepo_ReturnsCopies(t *testing.T) {
	r := NewMemoryOrderRepo()
	ctx := context.Background()
	o, secret := testOrder()
	require.NoError(t, r.Create(ctx, o, secret))

	o.Payment.State = domain.PaymentPaid
	got, _, _ := r.Get(ctx, o.OrderID)
	assert.Equal(t, domain.PaymentExpectPayment, got.Payment.State)

	got.Payment.State = domain.PaymentHold
	again, _, _ := r.Get(ctx, o.OrderID)
	assert.Equal(t, domain.PaymentExpectPayment, again.Payment.State)
	assert.Equal(t, 1, r.Len())
}
