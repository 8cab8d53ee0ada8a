// Package identity manages the persistent Ed25519 device identity.
//
// The identity is generated once, written to disk with owner-only
// permissions, and reused verbatim on every subsequent load. The derived
// device id is the lowercase hex SHA-256 digest of the raw 32-byte public
// key, so it is stable across restarts and across key encodings.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const fileVersion = 1

const (
	publicKeyPEMType  = "PUBLIC KEY"
	privateKeyPEMType = "PRIVATE KEY"
)

// Identity is a loaded device identity. It is immutable after Load.
type Identity struct {
	// DeviceID is the lowercase hex SHA-256 of the raw public key bytes.
	DeviceID string
	// PublicKey is the raw 32-byte Ed25519 public key.
	PublicKey ed25519.PublicKey
	// PrivateKey is the Ed25519 private key used for handshake signatures.
	PrivateKey ed25519.PrivateKey
	// CreatedAt is when the identity was first generated.
	CreatedAt time.Time
}

// identityFile is the on-disk JSON schema.
type identityFile struct {
	Version       int    `json:"version"`
	DeviceID      string `json:"deviceId"`
	PublicKeyPEM  string `json:"publicKeyPem"`
	PrivateKeyPEM string `json:"privateKeyPem"`
	CreatedAtMs   int64  `json:"createdAtMs"`
}

// Sign signs message with the identity's private key.
func (id *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(id.PrivateKey, message)
}

// DeviceIDFromPublicKey derives the stable device id from a raw Ed25519
// public key.
func DeviceIDFromPublicKey(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

// Load reads the identity file at path, generating and persisting a fresh
// identity when the file is absent or invalid. A discarded existing file is
// reported via the returned regenerated flag so callers can log the pairing
// loss.
func Load(path string) (*Identity, bool, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if id, perr := parse(data); perr == nil {
			return id, false, nil
		}
		// Corrupt or schema-mismatched file: fall through to regenerate.
		id, gerr := generate(path)
		if gerr != nil {
			return nil, false, gerr
		}
		return id, true, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		// Unreadable (permissions, I/O): same recovery as corruption.
		id, gerr := generate(path)
		if gerr != nil {
			return nil, false, gerr
		}
		return id, true, nil
	}
	id, gerr := generate(path)
	if gerr != nil {
		return nil, false, gerr
	}
	return id, false, nil
}

func parse(data []byte) (*Identity, error) {
	var f identityFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse identity file: %w", err)
	}
	if f.Version != fileVersion {
		return nil, fmt.Errorf("unsupported identity file version %d", f.Version)
	}
	if f.PublicKeyPEM == "" || f.PrivateKeyPEM == "" {
		return nil, errors.New("identity file missing key material")
	}
	pub, err := parsePublicKeyPEM(f.PublicKeyPEM)
	if err != nil {
		return nil, err
	}
	priv, err := parsePrivateKeyPEM(f.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	derived := DeviceIDFromPublicKey(pub)
	if f.DeviceID != derived {
		return nil, fmt.Errorf("identity file deviceId %q does not match key", f.DeviceID)
	}
	if !priv.Public().(ed25519.PublicKey).Equal(pub) {
		return nil, errors.New("identity file public/private key mismatch")
	}
	return &Identity{
		DeviceID:   derived,
		PublicKey:  pub,
		PrivateKey: priv,
		CreatedAt:  time.UnixMilli(f.CreatedAtMs),
	}, nil
}

func generate(path string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	id := &Identity{
		DeviceID:   DeviceIDFromPublicKey(pub),
		PublicKey:  pub,
		PrivateKey: priv,
		CreatedAt:  time.Now(),
	}
	if err := save(path, id); err != nil {
		return nil, err
	}
	return id, nil
}

// save persists the identity atomically (write-then-rename) with owner-only
// permissions, so a crash mid-write can never leave a half-written file to
// be read back.
func save(path string, id *Identity) error {
	pubPEM, err := encodePublicKeyPEM(id.PublicKey)
	if err != nil {
		return err
	}
	privPEM, err := encodePrivateKeyPEM(id.PrivateKey)
	if err != nil {
		return err
	}
	f := identityFile{
		Version:       fileVersion,
		DeviceID:      id.DeviceID,
		PublicKeyPEM:  pubPEM,
		PrivateKeyPEM: privPEM,
		CreatedAtMs:   id.CreatedAt.UnixMilli(),
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal identity file: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".identity-*")
	if err != nil {
		return fmt.Errorf("create temp identity file: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod identity file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write identity file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close identity file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename identity file: %w", err)
	}
	return nil
}

// parsePublicKeyPEM reduces any supported public key encoding to the raw
// 32-byte Ed25519 key, stripping the PKIX algorithm wrapper.
func parsePublicKeyPEM(pemText string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil || block.Type != publicKeyPEMType {
		return nil, errors.New("invalid public key PEM")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("public key is not ed25519")
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, errors.New("invalid public key size")
	}
	return pub, nil
}

func parsePrivateKeyPEM(pemText string) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil || block.Type != privateKeyPEMType {
		return nil, errors.New("invalid private key PEM")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not ed25519")
	}
	return priv, nil
}

func encodePublicKeyPEM(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: publicKeyPEMType, Bytes: der})), nil
}

func encodePrivateKeyPEM(priv ed25519.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: privateKeyPEMType, Bytes: der})), nil
}
