package wallet

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Session is the set of wallets an operator works on between runs.
type Session struct {
	ID        string    `json:"id"`
	Chain     Chain     `json:"chain"`
	Token     string    `json:"token,omitempty"`
	Accounts  []Account `json:"accounts"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store keeps a session in a JSON file.
type Store struct {
	Path string
}

func NewStore(path string) *Store { return &Store{Path: path} }

// Load reads the session; a missing file yields an empty session.
func (s *Store) Load() (Session, error) {
	f, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{ID: uuid.NewString()}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("open session: %w", err)
	}
	defer f.Close()
	var sess Session
	if err := json.NewDecoder(f).Decode(&sess); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", s.Path, err)
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	return sess, nil
}

// Save replaces the session file atomically.
func (s *Store) Save(sess Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.UpdatedAt = time.Now().UTC()
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sess); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

// WriteCSV exports accounts as "ID,Address,Secret Key" rows.
func WriteCSV(w io.Writer, accounts []Account) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ID", "Address", "Secret Key"}); err != nil {
		return err
	}
	for _, a := range accounts {
		secret := a.Secret
		if secret == "" {
			secret = "N/A"
		}
		if err := cw.Write([]string{strconv.Itoa(a.ID), a.Address, secret}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
