// Package lnd talks to an lnd node over gRPC and maps its responses onto
// the domain types used by the order engine.
package lnd

import (
	"context"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/macaroons"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"gopkg.in/macaroon.v2"

	"lsp-backend/internal/config"
	"lsp-backend/internal/domain"
	"lsp-backend/internal/metrics"
)

// lightningAPI is the part of lnrpc.LightningClient this package uses.
type lightningAPI interface {
	ListPeers(ctx context.Context, in *lnrpc.ListPeersRequest, opts ...grpc.CallOption) (*lnrpc.ListPeersResponse, error)
	NewAddress(ctx context.Context, in *lnrpc.NewAddressRequest, opts ...grpc.CallOption) (*lnrpc.NewAddressResponse, error)
	LookupInvoice(ctx context.Context, in *lnrpc.PaymentHash, opts ...grpc.CallOption) (*lnrpc.Invoice, error)
	GetTransactions(ctx context.Context, in *lnrpc.GetTransactionsRequest, opts ...grpc.CallOption) (*lnrpc.TransactionDetails, error)
	OpenChannelSync(ctx context.Context, in *lnrpc.OpenChannelRequest, opts ...grpc.CallOption) (*lnrpc.ChannelPoint, error)
}

// invoicesAPI is the part of invoicesrpc.InvoicesClient this package uses.
type invoicesAPI interface {
	AddHoldInvoice(ctx context.Context, in *invoicesrpc.AddHoldInvoiceRequest, opts ...grpc.CallOption) (*invoicesrpc.AddHoldInvoiceResp, error)
	SettleInvoice(ctx context.Context, in *invoicesrpc.SettleInvoiceMsg, opts ...grpc.CallOption) (*invoicesrpc.SettleInvoiceResp, error)
}

type Client struct {
	ln   lightningAPI
	inv  invoicesAPI
	conn *grpc.ClientConn
	log  zerolog.Logger
}

// Dial connects to the node described by cfg using its TLS certificate and
// macaroon files.
func Dial(cfg config.LNDConfig, log zerolog.Logger) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("lnd address is required")
	}
	certBytes, err := os.ReadFile(cfg.CertPath)
	if err != nil {
		return nil, fmt.Errorf("error reading TLS cert file %v: %w", cfg.CertPath, err)
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(certBytes) {
		return nil, errors.New("credentials: failed to append certificate")
	}

	macBytes, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("error reading macaroon file %v: %w", cfg.MacaroonPath, err)
	}
	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, fmt.Errorf("error decoding macaroon: %w", err)
	}
	macCred, err := macaroons.NewMacaroonCredential(mac)
	if err != nil {
		return nil, fmt.Errorf("error creating creds: %w", err)
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(cp, cfg.TLSHostOverride)),
		grpc.WithPerRPCCredentials(macCred),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to RPC server: %w", err)
	}

	c := New(lnrpc.NewLightningClient(conn), invoicesrpc.NewInvoicesClient(conn), log)
	c.conn = conn
	return c, nil
}

func New(ln lightningAPI, inv invoicesAPI, log zerolog.Logger) *Client {
	return &Client{
		ln:  ln,
		inv: inv,
		log: log.With().Str("component", "lnd").Logger(),
	}
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) fail(op string, err error) error {
	metrics.ObserveNodeError(op)
	c.log.Error().Err(err).Str("operation", op).Msg("lnd call failed")
	return fmt.Errorf("lnd %s: %w", op, err)
}

func (c *Client) ListPeers(ctx context.Context) ([]domain.Peer, error) {
	resp, err := c.ln.ListPeers(ctx, &lnrpc.ListPeersRequest{})
	if err != nil {
		return nil, c.fail("ListPeers", err)
	}
	peers := make([]domain.Peer, 0, len(resp.GetPeers()))
	for _, p := range resp.GetPeers() {
		peers = append(peers, domain.Peer{Pubkey: p.GetPubKey(), Address: p.GetAddress()})
	}
	return peers, nil
}

func (c *Client) AddHoldInvoice(ctx context.Context, req domain.HoldInvoiceRequest) (string, error) {
	resp, err := c.inv.AddHoldInvoice(ctx, &invoicesrpc.AddHoldInvoiceRequest{
		Memo:    req.Memo,
		Hash:    req.PaymentHash,
		Value:   req.AmountSat,
		Expiry:  req.ExpirySeconds,
		Private: req.Private,
	})
	if err != nil {
		return "", c.fail("AddHoldInvoice", err)
	}
	return resp.GetPaymentRequest(), nil
}

func (c *Client) NewAddress(ctx context.Context) (string, error) {
	resp, err := c.ln.NewAddress(ctx, &lnrpc.NewAddressRequest{
		Type: lnrpc.AddressType_WITNESS_PUBKEY_HASH,
	})
	if err != nil {
		return "", c.fail("NewAddress", err)
	}
	return resp.GetAddress(), nil
}

func (c *Client) LookupInvoiceState(ctx context.Context, paymentHash []byte) (domain.InvoiceState, error) {
	inv, err := c.ln.LookupInvoice(ctx, &lnrpc.PaymentHash{RHash: paymentHash})
	if err != nil {
		return "", c.fail("LookupInvoice", err)
	}
	return domain.InvoiceState(inv.GetState().String()), nil
}

func (c *Client) ListTransactions(ctx context.Context) ([]domain.OnchainTransaction, error) {
	resp, err := c.ln.GetTransactions(ctx, &lnrpc.GetTransactionsRequest{})
	if err != nil {
		return nil, c.fail("GetTransactions", err)
	}
	txs := make([]domain.OnchainTransaction, 0, len(resp.GetTransactions()))
	for _, tx := range resp.GetTransactions() {
		txs = append(txs, toTransaction(tx))
	}
	return txs, nil
}

func (c *Client) OpenChannel(ctx context.Context, req domain.OpenChannelRequest) (domain.ChannelPoint, error) {
	nodePub, err := hex.DecodeString(req.NodePubkey)
	if err != nil {
		return domain.ChannelPoint{}, fmt.Errorf("failed to decode pubkey: %w", err)
	}
	cp, err := c.ln.OpenChannelSync(ctx, &lnrpc.OpenChannelRequest{
		NodePubkey:         nodePub,
		LocalFundingAmount: req.FundingSat,
		PushSat:            req.PushSat,
		Private:            req.Private,
		SatPerVbyte:        req.SatPerVbyte,
	})
	if err != nil {
		return domain.ChannelPoint{}, c.fail("OpenChannelSync", err)
	}
	txid, err := fundingTxid(cp)
	if err != nil {
		return domain.ChannelPoint{}, c.fail("OpenChannelSync", err)
	}
	return domain.ChannelPoint{FundingTxid: txid, OutputIndex: cp.GetOutputIndex()}, nil
}

func (c *Client) SettleInvoice(ctx context.Context, preimage []byte) error {
	if _, err := c.inv.SettleInvoice(ctx, &invoicesrpc.SettleInvoiceMsg{Preimage: preimage}); err != nil {
		return c.fail("SettleInvoice", err)
	}
	return nil
}

// fundingTxid renders the funding txid in display order. lnd returns raw
// txid bytes in internal (reversed) order.
func fundingTxid(cp *lnrpc.ChannelPoint) (string, error) {
	if s := cp.GetFundingTxidStr(); s != "" {
		return s, nil
	}
	h, err := chainhash.NewHash(cp.GetFundingTxidBytes())
	if err != nil {
		return "", fmt.Errorf("funding txid: %w", err)
	}
	return h.String(), nil
}

func toTransaction(tx *lnrpc.Transaction) domain.OnchainTransaction {
	out := domain.OnchainTransaction{
		TxHash:               tx.GetTxHash(),
		AmountSat:            decimal.NewFromInt(tx.GetAmount()),
		NumConfirmations:     tx.GetNumConfirmations(),
		DestinationAddresses: tx.GetDestAddresses(),
	}
	for _, o := range tx.GetOutputDetails() {
		out.Outputs = append(out.Outputs, domain.TxOutput{
			Address:      o.GetAddress(),
			OutputIndex:  uint32(o.GetOutputIndex()),
			AmountSat:    decimal.NewFromInt(o.GetAmount()),
			IsOurAddress: o.GetIsOurAddress(),
		})
	}
	return out
}
