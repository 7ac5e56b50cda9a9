package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"lsp-backend/internal/domain"
)

// pgUniqueViolation is the SQLSTATE for a duplicate primary key.
const pgUniqueViolation = "23505"

type PostgresOrderRepo struct {
	db *sql.DB
}

func NewPostgresOrderRepo(ctx context.Context, dsn string) (*PostgresOrderRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	r := &PostgresOrderRepo{db: db}
	if err := r.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresOrderRepo) init(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS lsp_orders (
		order_id TEXT PRIMARY KEY,
		payment_state TEXT NOT NULL,
		body JSONB NOT NULL,
		payment_hash BYTEA NOT NULL,
		preimage BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("create lsp_orders: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS lsp_orders_payment_hash ON lsp_orders (payment_hash);`)
	return err
}

func (r *PostgresOrderRepo) Create(ctx context.Context, o *domain.Order, secret domain.HoldInvoiceSecret) error {
	body, err := encodeOrder(o)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `INSERT INTO lsp_orders (order_id,payment_state,body,payment_hash,preimage,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.OrderID, string(o.Payment.State), string(body), secret.PaymentHash, secret.Preimage, o.CreatedAt, now)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrOrderExists, o.OrderID)
	}
	return err
}

func (r *PostgresOrderRepo) Get(ctx context.Context, id string) (*domain.Order, bool, error) {
	var body []byte
	err := r.db.QueryRowContext(ctx, `SELECT body FROM lsp_orders WHERE order_id=$1`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	o, err := decodeOrder(body)
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

func (r *PostgresOrderRepo) GetSecret(ctx context.Context, id string) (*domain.HoldInvoiceSecret, bool, error) {
	s := domain.HoldInvoiceSecret{OrderID: id}
	err := r.db.QueryRowContext(ctx, `SELECT payment_hash,preimage FROM lsp_orders WHERE order_id=$1`, id).
		Scan(&s.PaymentHash, &s.Preimage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

// Update locks the row for the duration of fn.
func (r *PostgresOrderRepo) Update(ctx context.Context, id string, fn func(*domain.Order) error) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var body []byte
	err = tx.QueryRowContext(ctx, `SELECT body FROM lsp_orders WHERE order_id=$1 FOR UPDATE`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	o, err := decodeOrder(body)
	if err != nil {
		return nil, err
	}
	if err := fn(o); err != nil {
		return nil, err
	}
	if o.OrderID != id {
		return nil, fmt.Errorf("order id changed from %s to %s", id, o.OrderID)
	}
	if body, err = encodeOrder(o); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE lsp_orders SET payment_state=$2, body=$3, updated_at=$4 WHERE order_id=$1`,
		id, string(o.Payment.State), string(body), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresOrderRepo) Close() error {
	return r.db.Close()
}
