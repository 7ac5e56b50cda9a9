package usecase

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lsp-backend/internal/config"
)

func TestLSPService_ListProtocols(t *testing.T) {
	s := NewLSPService(config.DefaultLSPOptions())
	got := s.ListProtocols()
	assert.Equal(t, []int{1}, got)

	got[0] = 99
	assert.Equal(t, []int{1}, s.ListProtocols())
}

func TestLSPService_GetInfo(t *testing.T) {
	s := NewLSPService(config.DefaultLSPOptions())
	raw, err := json.Marshal(s.GetInfo())
	require.NoError(t, err)

	var info map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &info))
	opts := info["options"]
	assert.Equal(t, "100000000", opts["max_initial_client_balance_sat"])
	assert.Equal(t, float64(20160), opts["max_channel_expiry_blocks"])
	assert.Nil(t, opts["min_onchain_payment_size_sat"])
}

func TestLSPService_SetOptions(t *testing.T) {
	s := NewLSPService(config.DefaultLSPOptions())
	require.NoError(t, s.SetOptions(map[string]any{"max_channel_expiry_blocks": 4032}))
	assert.Equal(t, uint32(4032), s.Options().MaxChannelExpiryBlocks)

	err := s.SetOptions(map[string]any{"min_channel_balance_sat": "200000000"})
	assert.Error(t, err)
	assert.Equal(t, uint32(4032), s.Options().MaxChannelExpiryBlocks)

	assert.Error(t, s.SetOptions(map[string]any{"nope": 1}))
}

func TestLSPService_ReloadFile(t *testing.T) {
	s := NewLSPService(config.DefaultLSPOptions())
	path := filepath.Join(t.TempDir(), "options.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"max_channel_expiry_blocks": 4032}`), 0o600))
	require.NoError(t, s.ReloadFile(path))
	assert.Equal(t, uint32(4032), s.Options().MaxChannelExpiryBlocks)

	require.NoError(t, os.WriteFile(path, []byte(`{"max_channel_expiry_blocks": "x"`), 0o600))
	assert.Error(t, s.ReloadFile(path))
	assert.Equal(t, uint32(4032), s.Options().MaxChannelExpiryBlocks)

	assert.Error(t, s.ReloadFile(filepath.Join(t.TempDir(), "missing.json")))
}
