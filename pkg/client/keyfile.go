package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmerrifield20/starnotary/pkg/signature"
)

// LoadKey reads a private key written by SaveKey.
//
//	key, err := client.LoadKey(os.ExpandEnv("$HOME/.starctl/key"))
func LoadKey(path string) (*signature.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	key, err := signature.ParsePrivateKey(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("parse key file %q: %w", path, err)
	}
	return key, nil
}

// SaveKey writes key to path with owner-only permissions, creating parent
// directories as needed. An existing file is never overwritten.
func SaveKey(path string, key *signature.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("key file %q already exists", path)
		}
		return fmt.Errorf("create key file: %w", err)
	}
	if _, err := fmt.Fprintln(f, key.String()); err != nil {
		f.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	return f.Close()
}
