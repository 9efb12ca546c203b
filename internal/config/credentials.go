package config

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	keyFileName   = "key.key"
	credsFileName = "creds.enc"

	saltLen  = 16
	nonceLen = 24
)

// ErrNoCredentials is returned when no credential store exists yet.
var ErrNoCredentials = errors.New("config: no stored credentials")

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loadOrCreateKey reads the local key file, generating it on first use.
func loadOrCreateKey(dir string) ([]byte, error) {
	path := filepath.Join(dir, keyFileName)

	key, err := os.ReadFile(path)
	if err == nil {
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key = make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

func deriveKey(keyMaterial, salt []byte) (*[32]byte, error) {
	derived, err := scrypt.Key(keyMaterial, salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, err
	}
	var key [32]byte
	copy(key[:], derived)
	return &key, nil
}

// SaveCredentials encrypts and stores the username/password pair in dir.
// Layout of creds.enc: salt || nonce || secretbox ciphertext.
func SaveCredentials(dir, username, password string) error {
	keyMaterial, err := loadOrCreateKey(dir)
	if err != nil {
		return fmt.Errorf("credential key: %w", err)
	}

	plain, err := json.Marshal(credentials{Username: username, Password: password})
	if err != nil {
		return err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	key, err := deriveKey(keyMaterial, salt)
	if err != nil {
		return err
	}

	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}

	out := make([]byte, 0, saltLen+nonceLen+len(plain)+secretbox.Overhead)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, plain, &nonce, key)

	return os.WriteFile(filepath.Join(dir, credsFileName), out, 0o600)
}

// LoadCredentials decrypts the stored pair. Returns ErrNoCredentials when the
// store does not exist.
func LoadCredentials(dir string) (username, password string, err error) {
	data, err := os.ReadFile(filepath.Join(dir, credsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", ErrNoCredentials
		}
		return "", "", err
	}
	if len(data) < saltLen+nonceLen+secretbox.Overhead {
		return "", "", errors.New("config: credential store is corrupt")
	}

	keyMaterial, err := loadOrCreateKey(dir)
	if err != nil {
		return "", "", fmt.Errorf("credential key: %w", err)
	}

	salt := data[:saltLen]
	var nonce [nonceLen]byte
	copy(nonce[:], data[saltLen:saltLen+nonceLen])

	key, err := deriveKey(keyMaterial, salt)
	if err != nil {
		return "", "", err
	}

	plain, ok := secretbox.Open(nil, data[saltLen+nonceLen:], &nonce, key)
	if !ok {
		return "", "", errors.New("config: could not decrypt credentials")
	}

	var creds credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return "", "", err
	}
	return creds.Username, creds.Password, nil
}
