package server

import (
	"context"

	"lsp-backend/internal/jsonrpc"
	"lsp-backend/internal/usecase"
)

var createOrderParams = []string{
	"lsp_balance_sat",
	"client_balance_sat",
	"client_node_pubkey",
	"required_channel_confirmations",
	"funding_confirms_within_blocks",
	"channel_expiry_blocks",
	"token",
	"refund_onchain_address",
	"announce_channel",
}

func (s *Server) registerMethods() {
	s.rpc.Register("lsps0.list_protocols", nil, s.listProtocols)
	s.rpc.Register("lsps1.get_info", nil, s.getInfo)
	s.rpc.Register("lsps1.create_order", createOrderParams, s.createOrder)
	s.rpc.Register("lsps1.get_order", []string{"order_id"}, s.getOrder)
}

func (s *Server) listProtocols(ctx context.Context, _ jsonrpc.Params) (any, error) {
	return s.lsp.ListProtocols(), nil
}

func (s *Server) getInfo(ctx context.Context, _ jsonrpc.Params) (any, error) {
	return s.lsp.GetInfo(), nil
}

func (s *Server) createOrder(ctx context.Context, p jsonrpc.Params) (any, error) {
	req, err := bindCreateOrder(p)
	if err != nil {
		return nil, err
	}
	return s.orders.Create(ctx, req)
}

func (s *Server) getOrder(ctx context.Context, p jsonrpc.Params) (any, error) {
	id, err := stringParam(p, "order_id")
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, jsonrpc.NewError(jsonrpc.KindOrderNotFound, nil)
	}
	return s.orders.Get(ctx, id)
}

func bindCreateOrder(p jsonrpc.Params) (usecase.CreateOrderRequest, error) {
	var (
		req usecase.CreateOrderRequest
		err error
	)
	if req.ClientNodePubkey, err = stringParam(p, "client_node_pubkey"); err != nil {
		return req, err
	}
	if req.ClientNodePubkey == "" {
		return req, missingParam("client_node_pubkey")
	}
	if req.LSPBalanceSat, err = satParam(p, "lsp_balance_sat"); err != nil {
		return req, err
	}
	if req.ClientBalanceSat, err = satParam(p, "client_balance_sat"); err != nil {
		return req, err
	}
	if req.RequiredChannelConfirmations, err = uint32Param(p, "required_channel_confirmations"); err != nil {
		return req, err
	}
	if req.FundingConfirmsWithinBlocks, err = uint32Param(p, "funding_confirms_within_blocks"); err != nil {
		return req, err
	}
	if req.ChannelExpiryBlocks, err = uint32Param(p, "channel_expiry_blocks"); err != nil {
		return req, err
	}
	if req.Token, err = stringParam(p, "token"); err != nil {
		return req, err
	}
	if req.RefundOnchainAddress, err = stringParam(p, "refund_onchain_address"); err != nil {
		return req, err
	}
	if req.AnnounceChannel, err = boolParam(p, "announce_channel"); err != nil {
		return req, err
	}
	return req, nil
}
