package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Configuration for Argon2id hashing.
const (
	memory      = 19 * 1024 // Memory usage in KiB (19 MiB)
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

var (
	pepperMu sync.RWMutex
	pepper   string
)

// LoadPepper reads the pepper used for secret hashing from path, creating
// the file with a random value when it does not exist yet. The loaded value
// is used by every later HashPassword/VerifyPassword call.
func LoadPepper(path string) error {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("cryptox: create pepper dir: %w", err)
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		SetPepper(strings.TrimSpace(string(raw)))
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("cryptox: read pepper: %w", err)
	}

	buf := make([]byte, keyLength)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("cryptox: generate pepper: %w", err)
	}
	value := base64.RawURLEncoding.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(value), 0o600); err != nil {
		return fmt.Errorf("cryptox: write pepper: %w", err)
	}

	SetPepper(value)
	return nil
}

// SetPepper replaces the pepper directly. Tests use it to avoid touching disk.
func SetPepper(value string) {
	pepperMu.Lock()
	defer pepperMu.Unlock()
	pepper = value
}

func currentPepper() string {
	pepperMu.RLock()
	defer pepperMu.RUnlock()
	return pepper
}
