package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

const (
	// PrivateKeyFile is the default filename for the testbed private key
	PrivateKeyFile = "testbed"

	// PublicKeyFile is the default filename for the testbed public key
	PublicKeyFile = "testbed.pub"

	// KeyComment is the comment appended to generated public keys
	KeyComment = "testbed"
)

// ErrKeyMaterial is returned when the private key cannot be read or parsed.
// Retrying does not help, so readiness checks stop on it.
var ErrKeyMaterial = errors.New("unusable ssh private key")

// KeyPair holds paths to an SSH key pair
type KeyPair struct {
	PrivateKeyPath string
	PublicKeyPath  string
}

// EnsureKeyPair returns the key pair stored in keyDir, generating an Ed25519 pair if none exists
func EnsureKeyPair(keyDir string) (*KeyPair, error) {
	pair := &KeyPair{
		PrivateKeyPath: filepath.Join(keyDir, PrivateKeyFile),
		PublicKeyPath:  filepath.Join(keyDir, PublicKeyFile),
	}

	if fileExists(pair.PrivateKeyPath) && fileExists(pair.PublicKeyPath) {
		if err := validateKeyPair(pair.PrivateKeyPath, pair.PublicKeyPath); err != nil {
			return nil, fmt.Errorf("existing keys are invalid: %w (remove them to regenerate)", err)
		}
		return pair, nil
	}

	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	if err := generateED25519KeyPair(pair.PrivateKeyPath, pair.PublicKeyPath); err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	return pair, nil
}

func generateED25519KeyPair(privateKeyPath, publicKeyPath string) error {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate ed25519 key: %w", err)
	}

	sshPubKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return fmt.Errorf("convert public key to ssh format: %w", err)
	}
	pubKeyStr := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPubKey))) + " " + KeyComment + "\n"

	privKeyPEM, err := ssh.MarshalPrivateKey(privKey, KeyComment)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}

	if err := os.WriteFile(privateKeyPath, pem.EncodeToMemory(privKeyPEM), 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	// #nosec G306 -- public keys are meant to be world readable
	if err := os.WriteFile(publicKeyPath, []byte(pubKeyStr), 0o644); err != nil {
		_ = os.Remove(privateKeyPath)
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

func validateKeyPair(privateKeyPath, publicKeyPath string) error {
	if _, err := loadSigner(privateKeyPath); err != nil {
		return err
	}

	// #nosec G304 -- path is derived from the configured key directory
	pubData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey(pubData); err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	return nil
}

func loadSigner(privateKeyPath string) (ssh.Signer, error) {
	// #nosec G304 -- path comes from the operator's settings
	privData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read private key: %w", ErrKeyMaterial, err)
	}
	signer, err := ssh.ParsePrivateKey(privData)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %w", ErrKeyMaterial, err)
	}
	return signer, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
