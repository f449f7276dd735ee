// Package secure implements the session crypto scheme: an X25519 key
// agreement combined with Ed25519 message signing, with all traffic
// after the handshake sealed by XChaCha20-Poly1305 under a key derived
// from the shared secret.
package secure

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"parlor/internal/codec"
)

// keyKind identifies the key blob layout. A peer presenting any other
// kind is rejected during the handshake.
const keyKind = "x25519-ed25519-v1"

// deriveContext is the BLAKE3 key-derivation context string. Changing
// it invalidates interoperability with every existing peer.
const deriveContext = "parlor.session.v1"

type keyBlob struct {
	Kind string `cbor:"kind"`
	Ecdh []byte `cbor:"ecdh"`
	Sign []byte `cbor:"sign"`
}

// Scheme holds one side's key material. Import the peer's public key
// exactly once; Encrypt and Decrypt work only after that.
type Scheme struct {
	ecdhPrivate []byte
	ecdhPublic  []byte
	signPrivate ed25519.PrivateKey
	signPublic  ed25519.PublicKey

	peerSign ed25519.PublicKey
	sealer   sealer
}

type sealer interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
	Overhead() int
}

// NewScheme generates a fresh keypair for one session endpoint.
func NewScheme() (*Scheme, error) {
	ecdhPrivate := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(ecdhPrivate); err != nil {
		return nil, fmt.Errorf("generating X25519 key: %w", err)
	}
	ecdhPublic, err := curve25519.X25519(ecdhPrivate, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("deriving X25519 public key: %w", err)
	}
	signPublic, signPrivate, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	return &Scheme{
		ecdhPrivate: ecdhPrivate,
		ecdhPublic:  ecdhPublic,
		signPrivate: signPrivate,
		signPublic:  signPublic,
	}, nil
}

// ExportPublicKey returns this endpoint's public key blob, sent
// unencrypted during the handshake.
func (s *Scheme) ExportPublicKey() ([]byte, error) {
	return codec.Marshal(keyBlob{
		Kind: keyKind,
		Ecdh: s.ecdhPublic,
		Sign: s.signPublic,
	})
}

// ImportPublicKey installs the peer's public key blob, computes the
// shared secret, and readies the AEAD. Returns ErrKeyMismatch if the
// blob is not a compatible key kind.
func (s *Scheme) ImportPublicKey(blob []byte) error {
	var peer keyBlob
	if err := codec.Unmarshal(blob, &peer); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyMismatch, err)
	}
	if peer.Kind != keyKind {
		return fmt.Errorf("%w: kind %q", ErrKeyMismatch, peer.Kind)
	}
	if len(peer.Ecdh) != curve25519.PointSize || len(peer.Sign) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: bad key sizes %d/%d", ErrKeyMismatch, len(peer.Ecdh), len(peer.Sign))
	}

	secret, err := curve25519.X25519(s.ecdhPrivate, peer.Ecdh)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyMismatch, err)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	blake3.DeriveKey(deriveContext, secret, key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("initializing AEAD: %w", err)
	}

	s.peerSign = ed25519.PublicKey(peer.Sign)
	s.sealer = aead
	return nil
}

// Encrypt seals plaintext under the session key. The random nonce is
// prepended to the ciphertext.
func (s *Scheme) Encrypt(plaintext []byte) ([]byte, error) {
	if s.sealer == nil {
		return nil, ErrNotEstablished
	}
	nonce := make([]byte, s.sealer.NonceSize(), s.sealer.NonceSize()+len(plaintext)+s.sealer.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return s.sealer.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a sealed frame. Returns ErrAuthFailure for truncated,
// tampered, or otherwise unauthenticated ciphertext.
func (s *Scheme) Decrypt(ciphertext []byte) ([]byte, error) {
	if s.sealer == nil {
		return nil, ErrNotEstablished
	}
	if len(ciphertext) < s.sealer.NonceSize() {
		return nil, ErrAuthFailure
	}
	nonce, sealed := ciphertext[:s.sealer.NonceSize()], ciphertext[s.sealer.NonceSize():]
	plaintext, err := s.sealer.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthFailure
	}
	return plaintext, nil
}

// Sign signs data with this endpoint's signing key.
func (s *Scheme) Sign(data []byte) []byte {
	return ed25519.Sign(s.signPrivate, data)
}

// Verify checks a signature made by the peer over data. Always false
// before the peer's key has been imported.
func (s *Scheme) Verify(data, signature []byte) bool {
	if s.peerSign == nil || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(s.peerSign, data, signature)
}
