// Package evm reads balances from and moves funds on BNB Chain and other
// EVM networks through go-ethereum's ethclient.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"

	"github.com/ligun0805/bundle-wallets/internal/refresher"
)

// NativeDecimals is the precision of BNB/ETH amounts.
const NativeDecimals = 18

var ErrBadAddress = errors.New("evm: invalid address")

var (
	selBalanceOf = common.FromHex("0x70a08231")
	selDecimals  = common.FromHex("0x313ce567")
)

// Client is safe for concurrent use.
type Client struct {
	URL string
	ec  *ethclient.Client

	mu       sync.Mutex
	decimals map[common.Address]int32
}

// Dial connects over HTTP with a keep-alive transport. timeout <= 0 means 30s.
func Dial(url string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
	rc, err := rpc.DialHTTPWithClient(url, &http.Client{Timeout: timeout, Transport: transport})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{URL: url, ec: ethclient.NewClient(rc), decimals: map[common.Address]int32{}}, nil
}

func (c *Client) Close() { c.ec.Close() }

// Ping checks that the endpoint answers eth_chainId.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.ec.ChainID(ctx); err != nil {
		return wrap("eth_chainId", err)
	}
	return nil
}

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	// The address is left out of the error text so it cannot trip the
	// textual rate-limit matcher.
	if !common.IsHexAddress(s) {
		return common.Address{}, ErrBadAddress
	}
	return common.HexToAddress(s), nil
}

// NativeBalance returns the latest balance in whole coins.
func (c *Client) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	wei, err := c.ec.BalanceAt(ctx, addr, nil)
	if err != nil {
		return decimal.Zero, wrap("eth_getBalance", err)
	}
	return FromWei(wei, NativeDecimals), nil
}

// TokenBalance returns the ERC-20 balance of address scaled by the token's decimals.
func (c *Client) TokenBalance(ctx context.Context, address, token string) (decimal.Decimal, error) {
	owner, err := parseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	tok, err := parseAddress(token)
	if err != nil {
		return decimal.Zero, err
	}
	dec, err := c.TokenDecimals(ctx, tok)
	if err != nil {
		return decimal.Zero, err
	}
	data := append(append([]byte{}, selBalanceOf...), common.LeftPadBytes(owner.Bytes(), 32)...)
	res, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &tok, Data: data}, nil)
	if err != nil {
		return decimal.Zero, wrap("balanceOf", err)
	}
	if len(res) == 0 {
		return decimal.Zero, nil
	}
	return FromWei(new(big.Int).SetBytes(res), dec), nil
}

// TokenDecimals calls decimals() once per token and caches the answer.
// Tokens that return no data are treated as 18-decimal.
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) (int32, error) {
	c.mu.Lock()
	d, ok := c.decimals[token]
	c.mu.Unlock()
	if ok {
		return d, nil
	}
	res, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &token, Data: selDecimals}, nil)
	if err != nil {
		return 0, wrap("decimals", err)
	}
	d = NativeDecimals
	if len(res) > 0 {
		d = int32(res[len(res)-1])
	}
	c.mu.Lock()
	c.decimals[token] = d
	c.mu.Unlock()
	return d, nil
}

// Error carries the RPC method that failed.
type Error struct {
	Op  string
	Err error
}

func wrap(op string, err error) error { return &Error{Op: op, Err: err} }

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// RateLimited reports HTTP 429, the JSON-RPC "limit exceeded" code and
// throttling messages from providers that answer with a generic code.
func (e *Error) RateLimited() bool {
	var he rpc.HTTPError
	if errors.As(e.Err, &he) && he.StatusCode == http.StatusTooManyRequests {
		return true
	}
	var re rpc.Error
	if errors.As(e.Err, &re) {
		code := re.ErrorCode()
		return code == -32005 || code == http.StatusTooManyRequests || refresher.MentionsRateLimit(re.Error())
	}
	return false
}
