package server

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"lsp-backend/internal/jsonrpc"
)

func missingParam(name string) error {
	return jsonrpc.Errorf(jsonrpc.KindInvalidParams, "Missing required parameter: %q", name)
}

func invalidParam(name, want string) error {
	return jsonrpc.Errorf(jsonrpc.KindInvalidParams, "Invalid parameter %q: expected %s", name, want)
}

// satParam reads a required satoshi amount given either as a decimal string
// or as a JSON number. Amounts are whole and non-negative.
func satParam(p jsonrpc.Params, name string) (decimal.Decimal, error) {
	raw, ok := p[name]
	if !ok || raw == nil {
		return decimal.Decimal{}, missingParam(name)
	}
	var (
		d   decimal.Decimal
		err error
	)
	switch v := raw.(type) {
	case string:
		d, err = decimal.NewFromString(v)
	case json.Number:
		d, err = decimal.NewFromString(v.String())
	case float64:
		d = decimal.NewFromFloat(v)
	default:
		return decimal.Decimal{}, invalidParam(name, "a satoshi amount")
	}
	if err != nil || d.IsNegative() || !d.IsInteger() {
		return decimal.Decimal{}, invalidParam(name, "a non-negative whole satoshi amount")
	}
	return d, nil
}

// uint32Param reads an optional non-negative integer. A missing or null
// value returns nil.
func uint32Param(p jsonrpc.Params, name string) (*uint32, error) {
	raw, ok := p[name]
	if !ok || raw == nil {
		return nil, nil
	}
	var n uint64
	switch v := raw.(type) {
	case json.Number:
		u, err := strconv.ParseUint(v.String(), 10, 32)
		if err != nil {
			return nil, invalidParam(name, "a non-negative integer")
		}
		n = u
	case float64:
		if v < 0 || v > math.MaxUint32 || v != math.Trunc(v) {
			return nil, invalidParam(name, "a non-negative integer")
		}
		n = uint64(v)
	default:
		return nil, invalidParam(name, "a non-negative integer")
	}
	out := uint32(n)
	return &out, nil
}

func stringParam(p jsonrpc.Params, name string) (string, error) {
	raw, ok := p[name]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", invalidParam(name, "a string")
	}
	return s, nil
}

func boolParam(p jsonrpc.Params, name string) (bool, error) {
	raw, ok := p[name]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, invalidParam(name, "a boolean")
	}
	return b, nil
}
