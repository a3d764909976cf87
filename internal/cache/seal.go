package cache

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

var errSealedTooSmall = errors.New("sealed value too small")

// GenerateSalt returns 16 cryptographically random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a 32-byte AES-256 key from a passphrase and salt using Argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
}

// Sealer encrypts cache values with AES-256-GCM.
// Sealed layout: [16-byte salt][12-byte nonce][ciphertext].
//
// Argon2id is expensive, so the key for the sealer's own salt is derived once
// and keys for foreign salts are memoized.
type Sealer struct {
	passphrase string
	salt       []byte

	mu   sync.Mutex
	keys map[string][]byte
}

// NewSealer creates a sealer with a fresh random salt.
func NewSealer(passphrase string) (*Sealer, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	return NewSealerWithSalt(passphrase, salt), nil
}

func NewSealerWithSalt(passphrase string, salt []byte) *Sealer {
	s := &Sealer{
		passphrase: passphrase,
		salt:       append([]byte(nil), salt...),
		keys:       make(map[string][]byte),
	}
	s.keys[string(s.salt)] = DeriveKey(passphrase, s.salt)
	return s
}

func (s *Sealer) key(salt []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[string(salt)]; ok {
		return k
	}
	k := DeriveKey(s.passphrase, salt)
	s.keys[string(salt)] = k
	return k
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(s.key(s.salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	out = append(out, s.salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func (s *Sealer) Open(data []byte) ([]byte, error) {
	if len(data) < saltSize+nonceSize {
		return nil, errSealedTooSmall
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]
	ciphertext := data[saltSize+nonceSize:]

	gcm, err := newGCM(s.key(salt))
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
