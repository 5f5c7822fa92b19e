// Package solana reads SOL and SPL token balances and funds wallets through
// solana-go's JSON-RPC client.
package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	jrpc "github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/shopspring/decimal"

	"github.com/ligun0805/bundle-wallets/internal/refresher"
)

// LamportDecimals is the precision of SOL amounts.
const LamportDecimals = 9

var (
	ErrBadAddress = errors.New("solana: invalid address")
	ErrBadAmount  = errors.New("solana: invalid amount")
)

type Client struct {
	URL        string
	rpc        *rpc.Client
	Commitment rpc.CommitmentType
}

func New(url string) *Client {
	return &Client{URL: url, rpc: rpc.New(url), Commitment: rpc.CommitmentConfirmed}
}

func (c *Client) Close() error { return c.rpc.Close() }

// Ping checks that the endpoint reports itself healthy.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.rpc.GetHealth(ctx); err != nil {
		return wrap("getHealth", err)
	}
	return nil
}

func parseKey(s string) (sol.PublicKey, error) {
	pk, err := sol.PublicKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return sol.PublicKey{}, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	return pk, nil
}

// NativeBalance returns the SOL balance of address.
func (c *Client) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	pk, err := parseKey(address)
	if err != nil {
		return decimal.Zero, err
	}
	res, err := c.rpc.GetBalance(ctx, pk, c.Commitment)
	if err != nil {
		return decimal.Zero, wrap("getBalance", err)
	}
	return FromLamports(res.Value), nil
}

type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			TokenAmount struct {
				Amount   string `json:"amount"`
				Decimals int32  `json:"decimals"`
			} `json:"tokenAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

// TokenBalance sums the owner's token accounts for mint. An owner without
// token accounts holds zero.
func (c *Client) TokenBalance(ctx context.Context, address, mint string) (decimal.Decimal, error) {
	owner, err := parseKey(address)
	if err != nil {
		return decimal.Zero, err
	}
	mintKey, err := parseKey(mint)
	if err != nil {
		return decimal.Zero, err
	}
	res, err := c.rpc.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{Mint: &mintKey},
		&rpc.GetTokenAccountsOpts{Commitment: c.Commitment, Encoding: sol.EncodingJSONParsed},
	)
	if err != nil {
		return decimal.Zero, wrap("getTokenAccountsByOwner", err)
	}

	total := new(big.Int)
	var dec int32
	for _, ta := range res.Value {
		if ta == nil || ta.Account.Data == nil {
			continue
		}
		raw := ta.Account.Data.GetRawJSON()
		if raw == nil {
			continue
		}
		var acc parsedTokenAccount
		if err := json.Unmarshal(raw, &acc); err != nil {
			return decimal.Zero, fmt.Errorf("token account %s: %w", ta.Pubkey, err)
		}
		info := acc.Parsed.Info
		if info.Mint != "" && info.Mint != mintKey.String() {
			continue
		}
		amt, ok := new(big.Int).SetString(info.TokenAmount.Amount, 10)
		if !ok {
			return decimal.Zero, fmt.Errorf("token account %s: bad amount %q", ta.Pubkey, info.TokenAmount.Amount)
		}
		total.Add(total, amt)
		dec = info.TokenAmount.Decimals
	}
	return decimal.NewFromBigInt(total, -dec), nil
}

// FromLamports converts lamports to SOL.
func FromLamports(l uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(l), -LamportDecimals)
}

// ToLamports converts SOL to lamports, rejecting sub-lamport precision.
func ToLamports(amount decimal.Decimal) (uint64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("%w: %s is negative", ErrBadAmount, amount)
	}
	shifted := amount.Shift(LamportDecimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has sub-lamport precision", ErrBadAmount, amount)
	}
	bi := shifted.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("%w: %s overflows", ErrBadAmount, amount)
	}
	return bi.Uint64(), nil
}

// Error carries the RPC method that failed.
type Error struct {
	Op  string
	Err error
}

func wrap(op string, err error) error { return &Error{Op: op, Err: err} }

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// RateLimited reports HTTP 429 responses and JSON-RPC errors carrying code
// 429 or a throttling message, the way public Solana endpoints signal it.
// Only the status, code and message are inspected: the error text also
// holds the endpoint URL and the error data.
func (e *Error) RateLimited() bool {
	var he *jrpc.HTTPError
	if errors.As(e.Err, &he) && he != nil {
		return he.Code == http.StatusTooManyRequests
	}
	var re *jrpc.RPCError
	if errors.As(e.Err, &re) && re != nil {
		return re.Code == http.StatusTooManyRequests || refresher.MentionsRateLimit(re.Message)
	}
	return false
}
