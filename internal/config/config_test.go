package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/bundle-wallets/internal/refresher"
	"github.com/ligun0805/bundle-wallets/internal/wallet"
)

var allKeys = []string{
	"CHAIN", "SOLANA_RPC_URLS", "BSC_RPC_URLS", "TOKEN_ADDRESS",
	"REFRESH_CHUNK_SIZE", "REFRESH_CHUNK_DELAY_MS", "REFRESH_MAX_ATTEMPTS",
	"REFRESH_BASE_BACKOFF_MS", "REFRESH_MAX_BACKOFF_MS", "RPC_RPS", "RPC_TIMEOUT_MS",
	"WALLETS_FILE", "FUNDING_PRIVATE_KEY", "LOG_LEVEL", "LOG_JSON",
}

func clearEnv(t *testing.T) {
	for _, k := range allKeys {
		t.Setenv(k, "")
		t.Setenv(strings.ToLower(k), "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	st := Load()

	assert.Equal(t, wallet.Solana, st.Chain)
	assert.Equal(t, []string{DefaultSolanaRPC}, st.SolanaRPCs)
	assert.Equal(t, []string{DefaultBSCRPC}, st.BSCRPCs)
	assert.Equal(t, "wallets_session.json", st.WalletsFile)
	assert.Equal(t, 30*time.Second, st.RPCTimeout)
	assert.Equal(t, "info", st.LogLevel)
	assert.False(t, st.LogJSON)

	assert.Equal(t, refresher.DefaultOptions(), st.RefreshOptions())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAIN", "bsc")
	t.Setenv("BSC_RPC_URLS", " https://a , ,https://b ")
	t.Setenv("token_address", "0x55d398326f99059fF775485246999027B3197955")
	t.Setenv("REFRESH_CHUNK_SIZE", "5")
	t.Setenv("REFRESH_CHUNK_DELAY_MS", "250")
	t.Setenv("REFRESH_MAX_ATTEMPTS", "4")
	t.Setenv("REFRESH_BASE_BACKOFF_MS", "500")
	t.Setenv("REFRESH_MAX_BACKOFF_MS", "1500")
	t.Setenv("RPC_RPS", "7.5")
	t.Setenv("LOG_JSON", "yes")

	st := Load()
	assert.Equal(t, wallet.EVM, st.Chain)
	assert.Equal(t, []string{"https://a", "https://b"}, st.RPCs(wallet.EVM))
	assert.Equal(t, []string{DefaultSolanaRPC}, st.RPCs(wallet.Solana))
	assert.Equal(t, 7.5, st.RPCRateLimit)
	assert.True(t, st.LogJSON)

	opts := st.RefreshOptions()
	assert.Equal(t, 5, opts.ChunkSize)
	assert.Equal(t, 250*time.Millisecond, opts.InterChunkDelay)
	assert.Equal(t, 4, opts.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, opts.BaseBackoff)
	assert.Equal(t, 1500*time.Millisecond, opts.MaxBackoff)
	assert.Equal(t, "0x55d398326f99059fF775485246999027B3197955", opts.Token)
}

func TestLoadIgnoresGarbage(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAIN", "tron")
	t.Setenv("REFRESH_CHUNK_SIZE", "three")
	t.Setenv("RPC_TIMEOUT_MS", "soon")

	st := Load()
	assert.Equal(t, wallet.Solana, st.Chain)
	assert.Equal(t, refresher.DefaultChunkSize, st.ChunkSize)
	assert.Equal(t, 30*time.Second, st.RPCTimeout)
}

func TestSplitCSV(t *testing.T) {
	require.Empty(t, SplitCSV(""))
	assert.Equal(t, []string{"a", "b"}, SplitCSV("a,,b,"))
}
