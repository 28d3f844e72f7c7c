package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"

	"golang.org/x/crypto/hkdf"

	"paystub/internal/domain/integrity"
)

const (
	sealKeySize   = 32
	minSecretSize = 16
	sealInfo      = "paystub-seal:"
)

var keyIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

var ErrWeakSecret = errors.New("SEAL_SECRET must decode to at least 16 bytes")

// Keyring derives per-key-ID seal keys from one master secret. Key IDs that
// were never current or retired are refused, so a forged stamp cannot pick
// its own key.
type Keyring struct {
	mu      sync.RWMutex
	master  []byte
	current string
	known   map[string]bool
}

func NewKeyring(secret, currentKeyID string, retired ...string) (*Keyring, error) {
	if secret == "" {
		return nil, integrity.ErrNoKey
	}
	master, err := decodeKey(secret)
	if err != nil {
		return nil, err
	}
	if len(master) < minSecretSize {
		return nil, ErrWeakSecret
	}
	k := &Keyring{master: master, known: map[string]bool{}}
	if err := k.Rotate(currentKeyID); err != nil {
		return nil, err
	}
	for _, id := range retired {
		if err := validKeyID(id); err != nil {
			return nil, err
		}
		k.known[id] = true
	}
	return k, nil
}

func validKeyID(id string) error {
	if !keyIDPattern.MatchString(id) {
		return fmt.Errorf("invalid seal key id %q", id)
	}
	return nil
}

// Rotate makes id the key for new seals. Earlier IDs still verify.
func (k *Keyring) Rotate(id string) error {
	if err := validKeyID(id); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.current = id
	k.known[id] = true
	return nil
}

func (k *Keyring) CurrentKeyID() string {
	if k == nil {
		return ""
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.current
}

// WithKey derives the key for keyID, hands it to fn and wipes it afterwards.
func (k *Keyring) WithKey(keyID string, fn func(key []byte) error) error {
	if k == nil {
		return integrity.ErrNoKey
	}
	k.mu.RLock()
	known := k.known[keyID]
	k.mu.RUnlock()
	if !known {
		return fmt.Errorf("%w: %q", integrity.ErrUnknownKey, keyID)
	}
	key := make([]byte, sealKeySize)
	defer clear(key)
	r := hkdf.New(sha256.New, k.master, nil, []byte(sealInfo+keyID))
	if _, err := io.ReadFull(r, key); err != nil {
		return err
	}
	return fn(key)
}

func decodeKey(raw string) ([]byte, error) {
	if len(raw) == 64 {
		decoded, err := hex.DecodeString(raw)
		if err == nil {
			return decoded, nil
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		return decoded, nil
	}
	return []byte(raw), nil
}
