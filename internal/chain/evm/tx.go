package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// TransferGas is the intrinsic gas of a plain value transfer.
const TransferGas uint64 = 21000

var ErrEmptyKey = errors.New("evm: empty private key")

// Transfer is one native-currency payment in whole coins.
type Transfer struct {
	To     string
	Amount decimal.Decimal
}

type FundParams struct {
	PrivateKeyHex string
	Transfers     []Transfer
	// GasLimit per transfer; zero means TransferGas.
	GasLimit uint64
	Logf     func(string, ...any)
}

type SweepParams struct {
	// Secrets are hex private keys of the wallets to empty.
	Secrets  []string
	To       string
	GasLimit uint64
	Logf     func(string, ...any)
}

// Result is the outcome for one target. Exactly one of Hash, Skipped or
// Err is set.
type Result struct {
	From    string
	To      string
	Value   decimal.Decimal
	Hash    string
	Skipped string
	Err     error
}

func logf(f func(string, ...any), format string, a ...any) {
	if f != nil {
		f(format, a...)
	}
}

// parsePrivateKey accepts hex with or without 0x.
func parsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if h == "" {
		return nil, ErrEmptyKey
	}
	return gethcrypto.HexToECDSA(h)
}

// fees holds either EIP-1559 caps or a legacy gas price.
type fees struct {
	tip      *big.Int
	feeCap   *big.Int
	gasPrice *big.Int
}

func (f fees) dynamic() bool { return f.feeCap != nil }

// maxCost is the most a transaction with gas units can be charged.
func (f fees) maxCost(gas uint64) *big.Int {
	price := f.gasPrice
	if f.dynamic() {
		price = f.feeCap
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gas), price)
}

// suggestFees uses cap = 2*baseFee + tip on 1559 chains and the node's gas
// price elsewhere.
func (c *Client) suggestFees(ctx context.Context) (fees, error) {
	h, err := c.ec.HeaderByNumber(ctx, nil)
	if err != nil {
		return fees{}, wrap("eth_getBlockByNumber", err)
	}
	if h.BaseFee == nil {
		gp, err := c.ec.SuggestGasPrice(ctx)
		if err != nil {
			return fees{}, wrap("eth_gasPrice", err)
		}
		return fees{gasPrice: gp}, nil
	}
	tip, err := c.ec.SuggestGasTipCap(ctx)
	if err != nil {
		return fees{}, wrap("eth_maxPriorityFeePerGas", err)
	}
	return dynamicFees(h.BaseFee, tip), nil
}

func dynamicFees(baseFee, tip *big.Int) fees {
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return fees{tip: new(big.Int).Set(tip), feeCap: feeCap}
}

func buildTx(chainID *big.Int, nonce uint64, to common.Address, value *big.Int, gas uint64, f fees) *types.Transaction {
	if f.dynamic() {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			Gas:       gas,
			GasTipCap: new(big.Int).Set(f.tip),
			GasFeeCap: new(big.Int).Set(f.feeCap),
			To:        &to,
			Value:     new(big.Int).Set(value),
		})
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: new(big.Int).Set(f.gasPrice),
		Gas:      gas,
		To:       &to,
		Value:    new(big.Int).Set(value),
	})
}

func signTx(tx *types.Transaction, chainID *big.Int, prv *ecdsa.PrivateKey) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), prv)
}

// Fund sends each transfer from the funding key with consecutive nonces.
// A failed transfer does not abort the rest; its nonce is reused by the
// next one. The returned error covers setup failures only.
func (c *Client) Fund(ctx context.Context, p FundParams) ([]Result, error) {
	prv, err := parsePrivateKey(p.PrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("funding key: %w", err)
	}
	from := gethcrypto.PubkeyToAddress(prv.PublicKey)
	gas := p.GasLimit
	if gas == 0 {
		gas = TransferGas
	}

	chainID, err := c.ec.ChainID(ctx)
	if err != nil {
		return nil, wrap("eth_chainId", err)
	}
	nonce, err := c.ec.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, wrap("eth_getTransactionCount", err)
	}
	f, err := c.suggestFees(ctx)
	if err != nil {
		return nil, err
	}
	logf(p.Logf, "fund: from %s, %d transfer(s), chain %s", from.Hex(), len(p.Transfers), chainID)

	out := make([]Result, len(p.Transfers))
	for i, tr := range p.Transfers {
		res := Result{From: from.Hex(), To: tr.To, Value: tr.Amount}
		if err := ctx.Err(); err != nil {
			res.Err = err
			out[i] = res
			continue
		}
		hash, err := c.send(ctx, prv, chainID, nonce, tr, gas, f)
		if err != nil {
			res.Err = err
			logf(p.Logf, "fund: %s failed: %v", tr.To, err)
		} else {
			res.Hash = hash
			nonce++
			logf(p.Logf, "fund: %s <- %s (%s)", tr.To, tr.Amount, hash)
		}
		out[i] = res
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, prv *ecdsa.PrivateKey, chainID *big.Int, nonce uint64, tr Transfer, gas uint64, f fees) (string, error) {
	to, err := parseAddress(tr.To)
	if err != nil {
		return "", err
	}
	value, err := ToWei(tr.Amount, NativeDecimals)
	if err != nil {
		return "", err
	}
	if value.Sign() == 0 {
		return "", fmt.Errorf("%w: zero transfer", ErrBadAmount)
	}
	signed, err := signTx(buildTx(chainID, nonce, to, value, gas, f), chainID, prv)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		return "", wrap("eth_sendRawTransaction", err)
	}
	return signed.Hash().Hex(), nil
}

// Sweep moves each wallet's balance minus the maximum gas cost to p.To.
// Wallets that cannot cover gas are reported as skipped.
func (c *Client) Sweep(ctx context.Context, p SweepParams) ([]Result, error) {
	to, err := parseAddress(p.To)
	if err != nil {
		return nil, err
	}
	gas := p.GasLimit
	if gas == 0 {
		gas = TransferGas
	}
	chainID, err := c.ec.ChainID(ctx)
	if err != nil {
		return nil, wrap("eth_chainId", err)
	}
	f, err := c.suggestFees(ctx)
	if err != nil {
		return nil, err
	}
	cost := f.maxCost(gas)

	out := make([]Result, len(p.Secrets))
	for i, secret := range p.Secrets {
		out[i] = Result{To: to.Hex()}
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		prv, err := parsePrivateKey(secret)
		if err != nil {
			out[i].Err = fmt.Errorf("wallet %d key: %w", i+1, err)
			continue
		}
		from := gethcrypto.PubkeyToAddress(prv.PublicKey)
		out[i].From = from.Hex()

		bal, err := c.ec.BalanceAt(ctx, from, nil)
		if err != nil {
			out[i].Err = wrap("eth_getBalance", err)
			continue
		}
		value, ok := sweepValue(bal, cost)
		if !ok {
			out[i].Skipped = fmt.Sprintf("balance %s does not cover gas %s", FromWei(bal, NativeDecimals), FromWei(cost, NativeDecimals))
			logf(p.Logf, "sweep: %s skipped: %s", from.Hex(), out[i].Skipped)
			continue
		}
		out[i].Value = FromWei(value, NativeDecimals)

		nonce, err := c.ec.PendingNonceAt(ctx, from)
		if err != nil {
			out[i].Err = wrap("eth_getTransactionCount", err)
			continue
		}
		signed, err := signTx(buildTx(chainID, nonce, to, value, gas, f), chainID, prv)
		if err != nil {
			out[i].Err = fmt.Errorf("sign: %w", err)
			continue
		}
		if err := c.ec.SendTransaction(ctx, signed); err != nil {
			out[i].Err = wrap("eth_sendRawTransaction", err)
			continue
		}
		out[i].Hash = signed.Hash().Hex()
		logf(p.Logf, "sweep: %s -> %s %s (%s)", from.Hex(), to.Hex(), out[i].Value, out[i].Hash)
	}
	return out, nil
}

// sweepValue is balance - cost when the balance strictly exceeds cost.
func sweepValue(balance, cost *big.Int) (*big.Int, bool) {
	if balance == nil || balance.Cmp(cost) <= 0 {
		return nil, false
	}
	return new(big.Int).Sub(balance, cost), true
}
