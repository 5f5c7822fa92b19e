package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ligun0805/bundle-wallets/internal/refresher"
	"github.com/ligun0805/bundle-wallets/internal/wallet"
)

const (
	DefaultSolanaRPC = "https://api.mainnet-beta.solana.com"
	DefaultBSCRPC    = "https://bsc-dataseed.bnbchain.org"
)

// Settings keeps all configuration options.
type Settings struct {
	Chain        wallet.Chain
	SolanaRPCs   []string
	BSCRPCs      []string
	TokenAddress string

	ChunkSize    int
	ChunkDelay   time.Duration
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	RPCRateLimit float64
	RPCTimeout   time.Duration
	WalletsFile  string
	FundingKey   string
	LogLevel     string
	LogJSON      bool
}

// Load reads settings from environment supporting both UPPER_CASE and lower_case keys.
// Unparseable values fall back to defaults.
func Load() Settings {
	get := func(keys []string, def string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				return v
			}
		}
		return def
	}
	getInt := func(keys []string, def int) int {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		return def
	}
	getMillis := func(keys []string, def time.Duration) time.Duration {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Duration(n) * time.Millisecond
		}
		return def
	}
	getFloat := func(keys []string, def float64) float64 {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n
		}
		return def
	}
	getBool := func(keys []string, def bool) bool {
		s := strings.ToLower(get(keys, ""))
		if s == "" {
			return def
		}
		return s == "1" || s == "true" || s == "yes" || s == "on"
	}

	st := Settings{}
	st.Chain = wallet.Solana
	if c, err := wallet.ParseChain(get([]string{"chain", "CHAIN"}, "solana")); err == nil {
		st.Chain = c
	}
	st.SolanaRPCs = SplitCSV(get([]string{"solana_rpc_urls", "SOLANA_RPC_URLS"}, DefaultSolanaRPC))
	st.BSCRPCs = SplitCSV(get([]string{"bsc_rpc_urls", "BSC_RPC_URLS"}, DefaultBSCRPC))
	st.TokenAddress = get([]string{"token_address", "TOKEN_ADDRESS"}, "")

	st.ChunkSize = getInt([]string{"refresh_chunk_size", "REFRESH_CHUNK_SIZE"}, refresher.DefaultChunkSize)
	st.ChunkDelay = getMillis([]string{"refresh_chunk_delay_ms", "REFRESH_CHUNK_DELAY_MS"}, refresher.DefaultInterChunkDelay)
	st.MaxAttempts = getInt([]string{"refresh_max_attempts", "REFRESH_MAX_ATTEMPTS"}, refresher.DefaultMaxAttempts)
	st.BaseBackoff = getMillis([]string{"refresh_base_backoff_ms", "REFRESH_BASE_BACKOFF_MS"}, refresher.DefaultBaseBackoff)
	st.MaxBackoff = getMillis([]string{"refresh_max_backoff_ms", "REFRESH_MAX_BACKOFF_MS"}, 0)

	st.RPCRateLimit = getFloat([]string{"rpc_rps", "RPC_RPS"}, 0)
	st.RPCTimeout = getMillis([]string{"rpc_timeout_ms", "RPC_TIMEOUT_MS"}, 30*time.Second)
	st.WalletsFile = get([]string{"wallets_file", "WALLETS_FILE"}, "wallets_session.json")
	st.FundingKey = get([]string{"funding_private_key", "FUNDING_PRIVATE_KEY"}, "")
	st.LogLevel = get([]string{"log_level", "LOG_LEVEL"}, "info")
	st.LogJSON = getBool([]string{"log_json", "LOG_JSON"}, false)

	return st
}

// RPCs returns the endpoint list for chain in fallback order.
func (s Settings) RPCs(chain wallet.Chain) []string {
	if chain == wallet.EVM {
		return s.BSCRPCs
	}
	return s.SolanaRPCs
}

// RefreshOptions maps the refresh tuning keys onto refresher options.
func (s Settings) RefreshOptions() refresher.Options {
	opts := refresher.DefaultOptions()
	opts.ChunkSize = s.ChunkSize
	opts.InterChunkDelay = s.ChunkDelay
	opts.MaxAttempts = s.MaxAttempts
	opts.BaseBackoff = s.BaseBackoff
	opts.MaxBackoff = s.MaxBackoff
	opts.Token = s.TokenAddress
	return opts
}

func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
