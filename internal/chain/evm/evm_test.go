package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/bundle-wallets/internal/chain"
)

const (
	hardhatKey  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhatAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	tokenAddr   = "0x55d398326f99059fF775485246999027B3197955"
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type handlerFunc func(params []json.RawMessage) (any, *rpcError)

// fakeNode answers single JSON-RPC requests from a method table.
type fakeNode struct {
	mu      sync.Mutex
	methods map[string]handlerFunc
	calls   map[string]int
	status  int
}

func newFakeNode(t *testing.T) (*fakeNode, *Client) {
	t.Helper()
	n := &fakeNode{methods: map[string]handlerFunc{}, calls: map[string]int{}}
	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)
	c, err := Dial(srv.URL, 0)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return n, c
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.calls[req.Method]++
	status := n.status
	h := n.methods[req.Method]
	n.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if h == nil {
		resp["error"] = rpcError{Code: -32601, Message: "method not found: " + req.Method}
	} else if res, rerr := h(req.Params); rerr != nil {
		resp["error"] = rerr
	} else {
		resp["result"] = res
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) handle(method string, h handlerFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.methods[method] = h
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func word(v int64) string {
	return hexutil.Encode(common.LeftPadBytes(big.NewInt(v).Bytes(), 32))
}

// callData pulls calldata from an eth_call argument, whichever field name the
// client used.
func callData(raw json.RawMessage) string {
	var arg struct {
		Data  string `json:"data"`
		Input string `json:"input"`
	}
	_ = json.Unmarshal(raw, &arg)
	if arg.Input != "" {
		return arg.Input
	}
	return arg.Data
}

func TestNativeBalance(t *testing.T) {
	n, c := newFakeNode(t)
	n.handle("eth_getBalance", func(params []json.RawMessage) (any, *rpcError) {
		var addr string
		_ = json.Unmarshal(params[0], &addr)
		assert.True(t, strings.EqualFold(hardhatAddr, addr))
		return "0x14d1120d7b160000", nil // 1.5e18
	})

	v, err := c.NativeBalance(context.Background(), hardhatAddr)
	require.NoError(t, err)
	assert.Equal(t, "1.5", v.String())

	_, err = c.NativeBalance(context.Background(), "0x1234")
	assert.ErrorIs(t, err, ErrBadAddress)
	assert.Equal(t, 1, n.count("eth_getBalance"))
}

func TestTokenBalanceCachesDecimals(t *testing.T) {
	n, c := newFakeNode(t)
	n.handle("eth_call", func(params []json.RawMessage) (any, *rpcError) {
		data := callData(params[0])
		switch {
		case strings.HasPrefix(data, "0x313ce567"):
			return word(6), nil
		case strings.HasPrefix(data, "0x70a08231"):
			assert.True(t, strings.HasSuffix(strings.ToLower(data), strings.ToLower(hardhatAddr[2:])))
			return word(1_234_500), nil
		}
		return nil, &rpcError{Code: -32000, Message: "unexpected call " + data}
	})

	for i := 0; i < 3; i++ {
		v, err := c.TokenBalance(context.Background(), hardhatAddr, tokenAddr)
		require.NoError(t, err)
		assert.Equal(t, "1.2345", v.String())
	}
	assert.Equal(t, 4, n.count("eth_call"))
}

func TestTokenBalanceEmptyReturnData(t *testing.T) {
	n, c := newFakeNode(t)
	n.handle("eth_call", func([]json.RawMessage) (any, *rpcError) { return "0x", nil })

	v, err := c.TokenBalance(context.Background(), hardhatAddr, tokenAddr)
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	d, err := c.TokenDecimals(context.Background(), common.HexToAddress(tokenAddr))
	require.NoError(t, err)
	assert.Equal(t, int32(18), d)
}

func TestRateLimitDetection(t *testing.T) {
	n, c := newFakeNode(t)
	n.status = http.StatusTooManyRequests

	_, err := c.NativeBalance(context.Background(), hardhatAddr)
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "eth_getBalance", e.Op)
	assert.True(t, e.RateLimited())
	assert.True(t, chain.IsRateLimited(err))
	assert.Equal(t, chain.ClassRateLimited, chain.Classify(err))

	n.status = 0
	n.handle("eth_getBalance", func([]json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: -32005, Message: "limit exceeded"}
	})
	_, err = c.NativeBalance(context.Background(), hardhatAddr)
	require.ErrorAs(t, err, &e)
	assert.True(t, e.RateLimited())

	n.handle("eth_getBalance", func([]json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: -32602, Message: "invalid argument"}
	})
	_, err = c.NativeBalance(context.Background(), hardhatAddr)
	require.ErrorAs(t, err, &e)
	assert.False(t, e.RateLimited())
	assert.False(t, chain.IsRateLimited(err))

	n.handle("eth_getBalance", func([]json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "rate limit exceeded, retry later"}
	})
	_, err = c.NativeBalance(context.Background(), hardhatAddr)
	require.ErrorAs(t, err, &e)
	assert.True(t, e.RateLimited())
	assert.True(t, chain.IsRateLimited(err))
}

func TestUnavailableNodeIsNotThrottled(t *testing.T) {
	n := &fakeNode{methods: map[string]handlerFunc{}, calls: map[string]int{}, status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)
	c, err := Dial(srv.URL+"/v1/key-4291", 0)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	_, err = c.NativeBalance(context.Background(), hardhatAddr)
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.False(t, e.RateLimited())
	assert.False(t, chain.IsRateLimited(err))
}

func TestUnits(t *testing.T) {
	assert.Equal(t, "0.000000000000000001", FromWei(big.NewInt(1), 18).String())
	assert.True(t, FromWei(nil, 18).IsZero())

	w, err := ToWei(decimal.RequireFromString("0.05"), 18)
	require.NoError(t, err)
	assert.Equal(t, "50000000000000000", w.String())

	w, err = ToWei(decimal.RequireFromString("12.5"), 6)
	require.NoError(t, err)
	assert.Equal(t, "12500000", w.String())

	_, err = ToWei(decimal.RequireFromString("0.0000001"), 6)
	assert.ErrorIs(t, err, ErrBadAmount)
	_, err = ToWei(decimal.NewFromInt(-1), 18)
	assert.ErrorIs(t, err, ErrBadAmount)
}

func TestFeesAndSweepValue(t *testing.T) {
	gwei := big.NewInt(1_000_000_000)
	f := dynamicFees(new(big.Int).Mul(big.NewInt(3), gwei), gwei)
	assert.True(t, f.dynamic())
	assert.Equal(t, "7000000000", f.feeCap.String())
	assert.Equal(t, "147000000000000", f.maxCost(TransferGas).String())

	legacy := fees{gasPrice: gwei}
	assert.False(t, legacy.dynamic())
	assert.Equal(t, "21000000000000", legacy.maxCost(TransferGas).String())

	v, ok := sweepValue(big.NewInt(100), big.NewInt(40))
	assert.True(t, ok)
	assert.Equal(t, int64(60), v.Int64())
	_, ok = sweepValue(big.NewInt(40), big.NewInt(40))
	assert.False(t, ok)
}

func TestSignedTxRecoversSender(t *testing.T) {
	prv, err := parsePrivateKey(hardhatKey)
	require.NoError(t, err)
	chainID := big.NewInt(56)
	to := common.HexToAddress(tokenAddr)

	for _, f := range []fees{dynamicFees(big.NewInt(1), big.NewInt(2)), {gasPrice: big.NewInt(5)}} {
		tx, err := signTx(buildTx(chainID, 7, to, big.NewInt(1000), TransferGas, f), chainID, prv)
		require.NoError(t, err)
		from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
		require.NoError(t, err)
		assert.Equal(t, hardhatAddr, from.Hex())
		assert.Equal(t, uint64(7), tx.Nonce())
		assert.Equal(t, to, *tx.To())
	}

	_, err = parsePrivateKey("  ")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func headerJSON(baseFee string) map[string]any {
	zeroHash := common.Hash{}.Hex()
	h := map[string]any{
		"parentHash":       zeroHash,
		"sha3Uncles":       types.EmptyUncleHash.Hex(),
		"miner":            common.Address{}.Hex(),
		"stateRoot":        zeroHash,
		"transactionsRoot": types.EmptyTxsHash.Hex(),
		"receiptsRoot":     types.EmptyReceiptsHash.Hex(),
		"logsBloom":        hexutil.Encode(make([]byte, types.BloomByteLength)),
		"difficulty":       "0x0",
		"number":           "0x10",
		"gasLimit":         "0x1c9c380",
		"gasUsed":          "0x0",
		"timestamp":        "0x6500000",
		"extraData":        "0x",
		"mixHash":          zeroHash,
		"nonce":            "0x0000000000000000",
	}
	if baseFee != "" {
		h["baseFeePerGas"] = baseFee
	}
	return h
}

func TestFundContinuesPastBadTarget(t *testing.T) {
	n, c := newFakeNode(t)
	n.handle("eth_chainId", func([]json.RawMessage) (any, *rpcError) { return "0x38", nil })
	n.handle("eth_getTransactionCount", func([]json.RawMessage) (any, *rpcError) { return "0x5", nil })
	n.handle("eth_getBlockByNumber", func([]json.RawMessage) (any, *rpcError) { return headerJSON("0x3b9aca00"), nil })
	n.handle("eth_maxPriorityFeePerGas", func([]json.RawMessage) (any, *rpcError) { return "0x3b9aca00", nil })

	var sent []*types.Transaction
	var mu sync.Mutex
	n.handle("eth_sendRawTransaction", func(params []json.RawMessage) (any, *rpcError) {
		var raw string
		_ = json.Unmarshal(params[0], &raw)
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(common.FromHex(raw)); err != nil {
			return nil, &rpcError{Code: -32000, Message: err.Error()}
		}
		mu.Lock()
		sent = append(sent, tx)
		mu.Unlock()
		return tx.Hash().Hex(), nil
	})

	var logs []string
	res, err := c.Fund(context.Background(), FundParams{
		PrivateKeyHex: hardhatKey,
		Transfers: []Transfer{
			{To: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Amount: decimal.RequireFromString("0.01")},
			{To: "not-an-address", Amount: decimal.RequireFromString("0.01")},
			{To: "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC", Amount: decimal.RequireFromString("0.02")},
		},
		Logf: func(f string, a ...any) { logs = append(logs, fmt.Sprintf(f, a...)) },
	})
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.NotEmpty(t, res[0].Hash)
	assert.ErrorIs(t, res[1].Err, ErrBadAddress)
	assert.NotEmpty(t, res[2].Hash)

	require.Len(t, sent, 2)
	assert.Equal(t, uint64(5), sent[0].Nonce())
	assert.Equal(t, uint64(6), sent[1].Nonce())
	assert.Equal(t, "20000000000000000", sent[1].Value().String())
	assert.Equal(t, uint8(types.DynamicFeeTxType), sent[0].Type())
	assert.Equal(t, "3000000000", sent[0].GasFeeCap().String())
	assert.Equal(t, "56", sent[0].ChainId().String())
	assert.Equal(t, res[0].Hash, sent[0].Hash().Hex())
	assert.NotEmpty(t, logs)
}

func TestSweepSkipsDustWallets(t *testing.T) {
	n, c := newFakeNode(t)
	n.handle("eth_chainId", func([]json.RawMessage) (any, *rpcError) { return "0x38", nil })
	n.handle("eth_getTransactionCount", func([]json.RawMessage) (any, *rpcError) { return "0x0", nil })
	n.handle("eth_getBlockByNumber", func([]json.RawMessage) (any, *rpcError) { return headerJSON(""), nil })
	n.handle("eth_gasPrice", func([]json.RawMessage) (any, *rpcError) { return "0x3b9aca00", nil })

	richKey, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	rich := gethcrypto.PubkeyToAddress(richKey.PublicKey)
	n.handle("eth_getBalance", func(params []json.RawMessage) (any, *rpcError) {
		var addr string
		_ = json.Unmarshal(params[0], &addr)
		if strings.EqualFold(addr, rich.Hex()) {
			return "0xde0b6b3a7640000", nil // 1e18
		}
		return "0x1", nil
	})
	var sent []*types.Transaction
	n.handle("eth_sendRawTransaction", func(params []json.RawMessage) (any, *rpcError) {
		var raw string
		_ = json.Unmarshal(params[0], &raw)
		tx := new(types.Transaction)
		_ = tx.UnmarshalBinary(common.FromHex(raw))
		sent = append(sent, tx)
		return tx.Hash().Hex(), nil
	})

	res, err := c.Sweep(context.Background(), SweepParams{
		Secrets: []string{hardhatKey, hexutil.Encode(gethcrypto.FromECDSA(richKey))},
		To:      tokenAddr,
	})
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.NotEmpty(t, res[0].Skipped)
	assert.Empty(t, res[0].Hash)
	require.NoError(t, res[1].Err)
	require.Len(t, sent, 1)

	// 1e18 - 21000 * 1 gwei
	assert.Equal(t, "999979000000000000", sent[0].Value().String())
	assert.Equal(t, uint8(types.LegacyTxType), sent[0].Type())
	assert.Equal(t, "0.999979", res[1].Value.String())

	_, err = c.Sweep(context.Background(), SweepParams{To: "nope"})
	assert.ErrorIs(t, err, ErrBadAddress)
}
