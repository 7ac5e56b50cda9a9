package lnd

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"lsp-backend/internal/config"
	"lsp-backend/internal/domain"
)

type fakeLightning struct {
	peers    []*lnrpc.Peer
	invoice  *lnrpc.Invoice
	txs      []*lnrpc.Transaction
	point    *lnrpc.ChannelPoint
	err      error
	openReq  *lnrpc.OpenChannelRequest
	addrReq  *lnrpc.NewAddressRequest
	lookedUp []byte
}

func (f *fakeLightning) ListPeers(ctx context.Context, in *lnrpc.ListPeersRequest, _ ...grpc.CallOption) (*lnrpc.ListPeersResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &lnrpc.ListPeersResponse{Peers: f.peers}, nil
}

func (f *fakeLightning) NewAddress(ctx context.Context, in *lnrpc.NewAddressRequest, _ ...grpc.CallOption) (*lnrpc.NewAddressResponse, error) {
	f.addrReq = in
	return &lnrpc.NewAddressResponse{Address: "bcrt1qnew"}, f.err
}

func (f *fakeLightning) LookupInvoice(ctx context.Context, in *lnrpc.PaymentHash, _ ...grpc.CallOption) (*lnrpc.Invoice, error) {
	f.lookedUp = in.RHash
	return f.invoice, f.err
}

func (f *fakeLightning) GetTransactions(ctx context.Context, in *lnrpc.GetTransactionsRequest, _ ...grpc.CallOption) (*lnrpc.TransactionDetails, error) {
	return &lnrpc.TransactionDetails{Transactions: f.txs}, f.err
}

func (f *fakeLightning) OpenChannelSync(ctx context.Context, in *lnrpc.OpenChannelRequest, _ ...grpc.CallOption) (*lnrpc.ChannelPoint, error) {
	f.openReq = in
	if f.err != nil {
		return nil, f.err
	}
	return f.point, nil
}

type fakeInvoices struct {
	addReq    *invoicesrpc.AddHoldInvoiceRequest
	settleReq *invoicesrpc.SettleInvoiceMsg
	err       error
}

func (f *fakeInvoices) AddHoldInvoice(ctx context.Context, in *invoicesrpc.AddHoldInvoiceRequest, _ ...grpc.CallOption) (*invoicesrpc.AddHoldInvoiceResp, error) {
	f.addReq = in
	if f.err != nil {
		return nil, f.err
	}
	return &invoicesrpc.AddHoldInvoiceResp{PaymentRequest: "lnbcrt250u1hold"}, nil
}

func (f *fakeInvoices) SettleInvoice(ctx context.Context, in *invoicesrpc.SettleInvoiceMsg, _ ...grpc.CallOption) (*invoicesrpc.SettleInvoiceResp, error) {
	f.settleReq = in
	return &invoicesrpc.SettleInvoiceResp{}, f.err
}

func newTestClient() (*Client, *fakeLightning, *fakeInvoices) {
	ln := &fakeLightning{}
	inv := &fakeInvoices{}
	return New(ln, inv, zerolog.Nop()), ln, inv
}

func TestClient_ListPeers(t *testing.T) {
	c, ln, _ := newTestClient()
	ln.peers = []*lnrpc.Peer{{PubKey: "02aa", Address: "127.0.0.1:9735"}}

	peers, err := c.ListPeers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Peer{{Pubkey: "02aa", Address: "127.0.0.1:9735"}}, peers)
}

func TestClient_AddHoldInvoice(t *testing.T) {
	c, _, inv := newTestClient()
	hash := make([]byte, 32)

	pr, err := c.AddHoldInvoice(context.Background(), domain.HoldInvoiceRequest{
		Memo:          "lsp-order-1",
		PaymentHash:   hash,
		AmountSat:     25020,
		ExpirySeconds: 3600,
		Private:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "lnbcrt250u1hold", pr)
	assert.Equal(t, "lsp-order-1", inv.addReq.Memo)
	assert.Equal(t, int64(25020), inv.addReq.Value)
	assert.Equal(t, int64(3600), inv.addReq.Expiry)
	assert.True(t, inv.addReq.Private)
	assert.Equal(t, hash, inv.addReq.Hash)
}

func TestClient_NewAddressIsP2WKH(t *testing.T) {
	c, ln, _ := newTestClient()
	addr, err := c.NewAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bcrt1qnew", addr)
	assert.Equal(t, lnrpc.AddressType_WITNESS_PUBKEY_HASH, ln.addrReq.Type)
}

func TestClient_LookupInvoiceState(t *testing.T) {
	c, ln, _ := newTestClient()
	ln.invoice = &lnrpc.Invoice{State: lnrpc.Invoice_ACCEPTED}

	state, err := c.LookupInvoiceState(context.Background(), []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceAccepted, state)
	assert.Equal(t, []byte{1, 2, 3}, ln.lookedUp)
}

func TestClient_ListTransactions(t *testing.T) {
	c, ln, _ := newTestClient()
	ln.txs = []*lnrpc.Transaction{{
		TxHash:           "ab",
		Amount:           25020,
		NumConfirmations: 3,
		DestAddresses:    []string{"bcrt1qaddr"},
		OutputDetails: []*lnrpc.OutputDetail{{
			Address:      "bcrt1qaddr",
			OutputIndex:  1,
			Amount:       25020,
			IsOurAddress: true,
		}},
	}}

	txs, err := c.ListTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "ab", txs[0].TxHash)
	assert.Equal(t, "25020", txs[0].AmountSat.String())
	assert.Equal(t, int32(3), txs[0].NumConfirmations)
	require.Len(t, txs[0].Outputs, 1)
	assert.Equal(t, uint32(1), txs[0].Outputs[0].OutputIndex)
	assert.True(t, txs[0].Outputs[0].IsOurAddress)
}

func TestClient_OpenChannelReversesTxid(t *testing.T) {
	c, ln, _ := newTestClient()
	raw := make([]byte, chainhash.HashSize)
	raw[0] = 0x01
	ln.point = &lnrpc.ChannelPoint{
		FundingTxid: &lnrpc.ChannelPoint_FundingTxidBytes{FundingTxidBytes: raw},
		OutputIndex: 2,
	}

	cp, err := c.OpenChannel(context.Background(), domain.OpenChannelRequest{
		NodePubkey:  "02aa",
		FundingSat:  1020000,
		PushSat:     20000,
		Private:     true,
		SatPerVbyte: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "0000000000000000000000000000000000000000000000000000000000000001:2", cp.String())
	assert.Equal(t, []byte{0x02, 0xaa}, ln.openReq.NodePubkey)
	assert.Equal(t, int64(1020000), ln.openReq.LocalFundingAmount)
	assert.Equal(t, int64(20000), ln.openReq.PushSat)
	assert.Equal(t, uint64(1), ln.openReq.SatPerVbyte)
	assert.True(t, ln.openReq.Private)
}

func TestClient_OpenChannelBadPubkey(t *testing.T) {
	c, ln, _ := newTestClient()
	_, err := c.OpenChannel(context.Background(), domain.OpenChannelRequest{NodePubkey: "zz"})
	assert.Error(t, err)
	assert.Nil(t, ln.openReq)
}

func TestClient_SettleInvoice(t *testing.T) {
	c, _, inv := newTestClient()
	require.NoError(t, c.SettleInvoice(context.Background(), []byte("secret")))
	assert.Equal(t, []byte("secret"), inv.settleReq.Preimage)
}

func TestClient_ErrorsAreWrapped(t *testing.T) {
	c, ln, inv := newTestClient()
	boom := errors.New("unavailable")
	ln.err = boom
	inv.err = boom

	_, err := c.ListPeers(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = c.AddHoldInvoice(context.Background(), domain.HoldInvoiceRequest{})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, c.SettleInvoice(context.Background(), nil), boom)
}

func TestDial_MissingFiles(t *testing.T) {
	_, err := Dial(config.LNDConfig{Address: "localhost:10009", CertPath: "/nonexistent/tls.cert"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = Dial(config.LNDConfig{}, zerolog.Nop())
	assert.Error(t, err)
}
