package tokens

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"
)

// ValidityPeriod is how long a freshly minted verification token stays valid.
const ValidityPeriod = 365 * 24 * time.Hour

// DefaultFallbackPassphrase signed every token minted before the
// CERTIFICATE_SECRET rotation. Decode may still try it so links issued back
// then keep resolving.
const DefaultFallbackPassphrase = "edulink-certificates-2019"

const (
	scryptN = 16384
	scryptR = 8
	scryptP = 1
	keyLen  = 32
)

var displayCodePattern = regexp.MustCompile(`^CERT-[A-Z0-9]{10}$`)

// ErrNoSecret is returned when token encryption is attempted without any
// configured passphrase. Production deployments fail closed at startup.
var ErrNoSecret = errors.New("certificate secret is not configured")

// Payload is the structured content of a verification token. The JSON field
// order below is the wire format of every token issued so far; previously
// issued links must keep round-tripping exactly.
type Payload struct {
	CertificateID string    `json:"certificateId"`
	StudentID     string    `json:"studentId"`
	CourseID      string    `json:"courseId"`
	GeneratedAt   time.Time `json:"generatedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Expired reports whether the token's embedded clock has passed at the given
// instant.
func (p Payload) Expired(at time.Time) bool {
	return at.After(p.ExpiresAt)
}

// Decoded is a successfully decoded token. UsedFallback reports that the
// primary key failed and the legacy key recovered the payload.
type Decoded struct {
	Payload
	UsedFallback bool
}

// DecodeError describes why a presented token could not be decoded. The
// stage is internal detail and must never be echoed to the public verify
// endpoint.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decode token: %s", e.Stage)
	}
	return fmt.Sprintf("decode token: %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type Config struct {
	// Passphrase is the deployment secret (CERTIFICATE_SECRET).
	Passphrase string
	// FallbackPassphrase, when set, is tried on decode after the primary
	// key fails. It is never used to mint new tokens while a primary
	// passphrase is configured.
	FallbackPassphrase string
	// Production makes construction fail closed when no passphrase is set.
	Production bool
}

// Codec encrypts certificate payloads into opaque URL-safe strings of the
// form <ivHex>:<cipherHex> and decrypts them back. Key derivation is done
// once at construction; Encode and Decode are pure CPU work after that.
type Codec struct {
	primaryKey  []byte
	fallbackKey []byte
}

func NewCodec(cfg Config) (*Codec, error) {
	c := &Codec{}

	if cfg.Passphrase != "" {
		key, err := deriveKey(cfg.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("derive primary key: %w", err)
		}
		c.primaryKey = key
	} else if cfg.Production {
		return nil, ErrNoSecret
	} else {
		log.Println("⚠️ CERTIFICATE_SECRET not set; tokens will be minted with the fallback key")
	}

	if cfg.FallbackPassphrase != "" && cfg.FallbackPassphrase != cfg.Passphrase {
		key, err := deriveKey(cfg.FallbackPassphrase)
		if err != nil {
			return nil, fmt.Errorf("derive fallback key: %w", err)
		}
		c.fallbackKey = key
	}

	if c.primaryKey == nil && c.fallbackKey == nil {
		return nil, ErrNoSecret
	}
	return c, nil
}

// deriveKey stretches a passphrase into an AES-256 key. The fixed "salt"
// literal is a known weakness (it should be per-deployment and random), but
// it is baked into every token issued so far; changing it would invalidate
// all outstanding verification links.
func deriveKey(passphrase string) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), []byte("salt"), scryptN, scryptR, scryptP, keyLen)
}

// Encode serializes and encrypts the payload. A fresh random IV is drawn per
// call, so two encodings of the same payload never match.
func (c *Codec) Encode(p Payload) (string, error) {
	key := c.primaryKey
	if key == nil {
		key = c.fallbackKey
	}
	if key == nil {
		return "", ErrNoSecret
	}

	plain, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad(plain, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decode reverses Encode. It is pure (no I/O) and returns a *DecodeError for
// every malformed or forged input, never a panic.
func (c *Codec) Decode(token string) (*Decoded, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return nil, &DecodeError{Stage: "format"}
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, &DecodeError{Stage: "iv", Err: err}
	}
	if len(iv) != aes.BlockSize {
		return nil, &DecodeError{Stage: "iv", Err: fmt.Errorf("iv is %d bytes, want %d", len(iv), aes.BlockSize)}
	}

	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, &DecodeError{Stage: "ciphertext", Err: err}
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, &DecodeError{Stage: "ciphertext", Err: fmt.Errorf("ciphertext length %d is not a positive multiple of the block size", len(ciphertext))}
	}

	if c.primaryKey != nil {
		if p, err := decryptPayload(c.primaryKey, iv, ciphertext); err == nil {
			return &Decoded{Payload: *p}, nil
		}
	}
	if c.fallbackKey != nil {
		if p, err := decryptPayload(c.fallbackKey, iv, ciphertext); err == nil {
			if c.primaryKey != nil {
				log.Println("⚠️ Verification token decoded with the legacy fallback key")
			}
			return &Decoded{Payload: *p, UsedFallback: c.primaryKey != nil}, nil
		}
	}
	return nil, &DecodeError{Stage: "decrypt"}
}

func decryptPayload(key, iv, ciphertext []byte) (*Payload, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plain, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, err
	}

	var p Payload
	if err := json.Unmarshal(plain, &p); err != nil {
		return nil, err
	}
	// CBC carries no authenticator: a flipped ciphertext bit garbles one
	// plaintext block, and garbage landing inside a JSON string value can
	// still parse. The payload's rigid shape is the integrity check; every
	// field must survive intact or the whole token is rejected.
	if !displayCodePattern.MatchString(p.CertificateID) {
		return nil, errors.New("payload display code is malformed")
	}
	if _, err := uuid.Parse(p.StudentID); err != nil {
		return nil, errors.New("payload student id is malformed")
	}
	if _, err := uuid.Parse(p.CourseID); err != nil {
		return nil, errors.New("payload course id is malformed")
	}
	if p.GeneratedAt.IsZero() || p.ExpiresAt.IsZero() {
		return nil, errors.New("payload timestamps are missing")
	}
	return &p, nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	padded := make([]byte, len(b)+n)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errors.New("invalid padding")
	}
	for _, pad := range b[len(b)-n:] {
		if int(pad) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
