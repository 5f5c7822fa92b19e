package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/ligun0805/bundle-wallets/internal/wallet"
)

var ErrNotConfirmed = errors.New("solana: transaction not confirmed in time")

type Transfer struct {
	To     string
	Amount decimal.Decimal
}

type FundParams struct {
	// Secret is the funding keypair, base58 or a JSON byte array.
	Secret    string
	Transfers []Transfer
	// ConfirmTimeout bounds the status poll per transfer; zero means 30s.
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Logf           func(string, ...any)
}

// Result is the outcome for one target. Signature is set once the
// transaction was accepted, even if confirmation then failed.
type Result struct {
	To        string
	Amount    decimal.Decimal
	Signature string
	Err       error
}

func logf(f func(string, ...any), format string, a ...any) {
	if f != nil {
		f(format, a...)
	}
}

// Fund sends one system transfer per target and waits for each to reach
// confirmed status before sending the next.
func (c *Client) Fund(ctx context.Context, p FundParams) ([]Result, error) {
	prv, err := wallet.ParseSolanaSecret(p.Secret)
	if err != nil {
		return nil, fmt.Errorf("funding key: %w", err)
	}
	if p.ConfirmTimeout <= 0 {
		p.ConfirmTimeout = 30 * time.Second
	}
	if p.PollInterval <= 0 {
		p.PollInterval = 500 * time.Millisecond
	}
	from := prv.PublicKey()
	logf(p.Logf, "fund: from %s, %d transfer(s)", from, len(p.Transfers))

	out := make([]Result, len(p.Transfers))
	for i, tr := range p.Transfers {
		out[i] = Result{To: tr.To, Amount: tr.Amount}
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		sig, err := c.transfer(ctx, prv, tr)
		if err != nil {
			out[i].Err = err
			logf(p.Logf, "fund: %s failed: %v", tr.To, err)
			continue
		}
		out[i].Signature = sig.String()
		if err := c.waitConfirmed(ctx, sig, p.ConfirmTimeout, p.PollInterval); err != nil {
			out[i].Err = err
			logf(p.Logf, "fund: %s sent (%s) but %v", tr.To, sig, err)
			continue
		}
		logf(p.Logf, "fund: %s <- %s SOL (%s)", tr.To, tr.Amount, sig)
	}
	return out, nil
}

func (c *Client) transfer(ctx context.Context, prv sol.PrivateKey, tr Transfer) (sol.Signature, error) {
	to, err := parseKey(tr.To)
	if err != nil {
		return sol.Signature{}, err
	}
	lamports, err := ToLamports(tr.Amount)
	if err != nil {
		return sol.Signature{}, err
	}
	if lamports == 0 {
		return sol.Signature{}, fmt.Errorf("%w: zero transfer", ErrBadAmount)
	}
	from := prv.PublicKey()

	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return sol.Signature{}, wrap("getLatestBlockhash", err)
	}
	tx, err := sol.NewTransaction(
		[]sol.Instruction{system.NewTransferInstruction(lamports, from, to).Build()},
		recent.Value.Blockhash,
		sol.TransactionPayer(from),
	)
	if err != nil {
		return sol.Signature{}, fmt.Errorf("build transfer: %w", err)
	}
	if _, err := tx.Sign(func(key sol.PublicKey) *sol.PrivateKey {
		if key.Equals(from) {
			return &prv
		}
		return nil
	}); err != nil {
		return sol.Signature{}, fmt.Errorf("sign transfer: %w", err)
	}
	sig, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return sol.Signature{}, wrap("sendTransaction", err)
	}
	return sig, nil
}

func (c *Client) waitConfirmed(ctx context.Context, sig sol.Signature, timeout, every time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		res, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		if err == nil && res != nil && len(res.Value) > 0 && res.Value[0] != nil {
			st := res.Value[0]
			if st.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", sig, st.Err)
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrNotConfirmed
			}
			return ctx.Err()
		case <-tick.C:
		}
	}
}
