package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
)

// LSPOptions is the channel-sale policy advertised by lsps1.get_info.
type LSPOptions struct {
	MinRequiredChannelConfirmations uint32           `json:"min_required_channel_confirmations"`
	MinFundingConfirmsWithinBlocks  uint32           `json:"min_funding_confirms_within_blocks"`
	MinOnchainPaymentConfirmations  uint32           `json:"min_onchain_payment_confirmations"`
	SupportsZeroChannelReserve      bool             `json:"supports_zero_channel_reserve"`
	MinOnchainPaymentSizeSat        *decimal.Decimal `json:"min_onchain_payment_size_sat"`
	MaxChannelExpiryBlocks          uint32           `json:"max_channel_expiry_blocks"`
	MinInitialClientBalanceSat      decimal.Decimal  `json:"min_initial_client_balance_sat"`
	MaxInitialClientBalanceSat      decimal.Decimal  `json:"max_initial_client_balance_sat"`
	MinInitialLSPBalanceSat         decimal.Decimal  `json:"min_initial_lsp_balance_sat"`
	MaxInitialLSPBalanceSat         decimal.Decimal  `json:"max_initial_lsp_balance_sat"`
	MinChannelBalanceSat            decimal.Decimal  `json:"min_channel_balance_sat"`
	MaxChannelBalanceSat            decimal.Decimal  `json:"max_channel_balance_sat"`
}

func DefaultLSPOptions() LSPOptions {
	return LSPOptions{
		MinRequiredChannelConfirmations: 0,
		MinFundingConfirmsWithinBlocks:  6,
		MinOnchainPaymentConfirmations:  1,
		SupportsZeroChannelReserve:      true,
		MinOnchainPaymentSizeSat:        nil,
		MaxChannelExpiryBlocks:          20160,
		MinInitialClientBalanceSat:      decimal.NewFromInt(20000),
		MaxInitialClientBalanceSat:      decimal.NewFromInt(100000000),
		MinInitialLSPBalanceSat:         decimal.Zero,
		MaxInitialLSPBalanceSat:         decimal.NewFromInt(100000000),
		MinChannelBalanceSat:            decimal.NewFromInt(50000),
		MaxChannelBalanceSat:            decimal.NewFromInt(100000000),
	}
}

// Keys lists the recognized option names.
func (o LSPOptions) Keys() []string {
	m, _ := o.toMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set returns a copy of o with one option replaced.
func (o LSPOptions) Set(key string, value any) (LSPOptions, error) {
	return o.SetAll(map[string]any{key: value})
}

// SetAll returns a copy of o with the given options replaced. Unknown keys
// and min/max pairs with min above max are rejected and o is left as is.
func (o LSPOptions) SetAll(values map[string]any) (LSPOptions, error) {
	current, err := o.toMap()
	if err != nil {
		return o, err
	}
	for key, value := range values {
		if _, ok := current[key]; !ok {
			return o, fmt.Errorf("unknown LSP option: %s", key)
		}
		current[key] = value
	}
	raw, err := json.Marshal(current)
	if err != nil {
		return o, err
	}
	var next LSPOptions
	if err := json.Unmarshal(raw, &next); err != nil {
		return o, fmt.Errorf("invalid LSP option value: %w", err)
	}
	if err := next.Check(); err != nil {
		return o, err
	}
	return next, nil
}

// Check verifies every min_* option is not above its max_* counterpart.
func (o LSPOptions) Check() error {
	pairs := []struct {
		name     string
		min, max decimal.Decimal
	}{
		{"initial_client_balance_sat", o.MinInitialClientBalanceSat, o.MaxInitialClientBalanceSat},
		{"initial_lsp_balance_sat", o.MinInitialLSPBalanceSat, o.MaxInitialLSPBalanceSat},
		{"channel_balance_sat", o.MinChannelBalanceSat, o.MaxChannelBalanceSat},
	}
	for _, p := range pairs {
		if p.min.GreaterThan(p.max) {
			return fmt.Errorf("min_%s must be <= max_%s", p.name, p.name)
		}
	}
	return nil
}

// LoadLSPOptionsFile applies the JSON object in path on top of base.
func LoadLSPOptionsFile(base LSPOptions, path string) (LSPOptions, error) {
	values, err := ReadLSPOptionsFile(path)
	if err != nil {
		return base, err
	}
	return base.SetAll(values)
}

// ReadLSPOptionsFile returns the raw option overrides stored in path.
func ReadLSPOptionsFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read LSP options file: %w", err)
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse LSP options file: %w", err)
	}
	return values, nil
}

func (o LSPOptions) toMap() (map[string]any, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
