// Package vault seals provider credentials with AES-256-GCM under a
// process-wide key. Plaintext credentials exist only between Open and the
// provider adapter call; nothing here logs or returns them elsewhere.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Error wraps any vault failure: missing/short key, corrupt blob, or a key
// rotated without re-encryption. Fatal for provider operations of the
// affected tenant, never for the process.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("vault %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// IsVaultError reports whether err originated in the vault.
func IsVaultError(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

// Vault encrypts and decrypts credential maps. The key is fixed at
// construction; rotation means re-sealing every stored blob offline.
type Vault struct {
	key []byte
}

// New requires a 32-byte key (AES-256).
func New(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, &Error{Op: "init", Err: fmt.Errorf("key must be 32 bytes, got %d", len(key))}
	}
	v := &Vault{key: make([]byte, 32)}
	copy(v.key, key)
	return v, nil
}

// Seal encrypts a credential map into an opaque base64 blob.
func (v *Vault) Seal(creds map[string]string) (string, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return "", &Error{Op: "seal", Err: err}
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", &Error{Op: "seal", Err: err}
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", &Error{Op: "seal", Err: err}
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", &Error{Op: "seal", Err: err}
	}

	sealed := aesGCM.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a blob produced by Seal.
func (v *Vault) Open(blob string) (map[string]string, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return nil, &Error{Op: "open", Err: fmt.Errorf("ciphertext too short")}
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plain, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	var creds map[string]string
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	return creds, nil
}
