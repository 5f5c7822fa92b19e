package wallet

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

var ErrBadSecret = errors.New("bad secret key")

// Generate creates n fresh wallets for the chain.
func Generate(chain Chain, n int) ([]Account, error) {
	if n < 0 {
		return nil, fmt.Errorf("generate: negative count %d", n)
	}
	out := make([]Account, 0, n)
	for i := 0; i < n; i++ {
		var (
			acc Account
			err error
		)
		switch chain {
		case Solana:
			acc, err = newSolanaAccount()
		case EVM:
			acc, err = newEVMAccount()
		default:
			return nil, fmt.Errorf("generate: unknown chain %q", chain)
		}
		if err != nil {
			return nil, fmt.Errorf("generate wallet %d: %w", i+1, err)
		}
		acc.ID = i + 1
		out = append(out, acc)
	}
	return out, nil
}

func newSolanaAccount() (Account, error) {
	prv, err := solana.NewRandomPrivateKey()
	if err != nil {
		return Account{}, err
	}
	return Account{Address: prv.PublicKey().String(), Secret: prv.String()}, nil
}

func newEVMAccount() (Account, error) {
	prv, err := gethcrypto.GenerateKey()
	if err != nil {
		return Account{}, err
	}
	return Account{
		Address: gethcrypto.PubkeyToAddress(prv.PublicKey).Hex(),
		Secret:  hex.EncodeToString(gethcrypto.FromECDSA(prv)),
	}, nil
}

// DeriveAddress returns the address controlled by secret.
func DeriveAddress(chain Chain, secret string) (string, error) {
	switch chain {
	case Solana:
		prv, err := ParseSolanaSecret(secret)
		if err != nil {
			return "", err
		}
		return prv.PublicKey().String(), nil
	case EVM:
		h := strings.TrimPrefix(strings.TrimSpace(secret), "0x")
		if h == "" {
			return "", fmt.Errorf("%w: empty", ErrBadSecret)
		}
		prv, err := gethcrypto.HexToECDSA(h)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrBadSecret, err)
		}
		return gethcrypto.PubkeyToAddress(prv.PublicKey).Hex(), nil
	}
	return "", fmt.Errorf("derive: unknown chain %q", chain)
}

// ParseSolanaSecret accepts a base58 64-byte keypair or the JSON byte-array
// form written by solana-keygen ("[130,187,...]").
func ParseSolanaSecret(secret string) (solana.PrivateKey, error) {
	s := strings.TrimSpace(secret)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadSecret)
	}
	var raw []byte
	if strings.HasPrefix(s, "[") {
		var arr []int
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadSecret, err)
		}
		raw = make([]byte, len(arr))
		for i, v := range arr {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: byte %d out of range", ErrBadSecret, i)
			}
			raw[i] = byte(v)
		}
	} else {
		prv, err := solana.PrivateKeyFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadSecret, err)
		}
		raw = prv
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrBadSecret, ed25519.PrivateKeySize, len(raw))
	}
	// the second half must be the public key of the seed
	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !bytes.Equal(derived[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("%w: public half does not match seed", ErrBadSecret)
	}
	return solana.PrivateKey(raw), nil
}
