// Package token mints and verifies position tokens: small encrypted blobs
// binding a session ID's queue position and expiry so a reverse proxy can
// answer "what's my position" from a cookie without a Redis round trip on
// every poll. The core still owns the only source of truth (the backing
// store); a token is a cache, and verification always re-derives from the
// ciphertext rather than trusting caller-supplied plaintext.
package token

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"errors"
	"fmt"

	"bouncer/convertx"
)

var (
	ErrEmptyInput     = errors.New("token: input must not be empty")
	ErrInvalidPadding = errors.New("token: invalid padding")
	ErrNotBlockAligned = errors.New("token: ciphertext is not block-aligned")
	ErrMalformed      = errors.New("token: malformed payload")
)

// Signer encrypts and decrypts position-token payloads with AES-CBC.
type Signer struct {
	key []byte
	iv  []byte
}

// NewSigner validates key/iv lengths up front (16/24/32 bytes for the key,
// exactly aes.BlockSize for the IV) so misconfiguration fails at startup,
// not on the first request.
func NewSigner(key, iv string) (*Signer, error) {
	if key == "" || iv == "" {
		return nil, errors.New("token: key and iv must not be empty")
	}

	k := []byte(key)
	v := []byte(iv)

	validKeyLengths := map[int]bool{16: true, 24: true, 32: true}
	if !validKeyLengths[len(k)] {
		return nil, fmt.Errorf("token: invalid key length: %d bytes; must be 16, 24, or 32", len(k))
	}
	if len(v) != aes.BlockSize {
		return nil, fmt.Errorf("token: invalid iv length: %d bytes; must be %d", len(v), aes.BlockSize)
	}

	return &Signer{key: k, iv: v}, nil
}

// Position is the plaintext payload a token binds: the ID, its 1-based
// queue position (0 = store), and its absolute expiry (epoch seconds).
type Position struct {
	ID      string
	Pos     int32
	Expiry  int64
}

// Mint encrypts p into an opaque token.
func (s *Signer) Mint(p Position) ([]byte, error) {
	idBytes := []byte(p.ID)
	if len(idBytes) > 1<<16-1 {
		return nil, fmt.Errorf("token: id too long: %d bytes", len(idBytes))
	}

	payload := make([]byte, 0, 2+len(idBytes)+4+8)
	payload = append(payload, convertx.Int32ToBytes(int32(len(idBytes)))[2:]...)
	payload = append(payload, idBytes...)
	payload = append(payload, convertx.Int32ToBytes(p.Pos)...)
	payload = append(payload, convertx.Int64ToBytes(p.Expiry)...)

	return s.encrypt(payload)
}

// Verify decrypts and unpacks a token minted by Mint.
func (s *Signer) Verify(tok []byte) (Position, error) {
	payload, err := s.decrypt(tok)
	if err != nil {
		return Position{}, err
	}
	if len(payload) < 2 {
		return Position{}, ErrMalformed
	}

	idLen := int(payload[0])<<8 | int(payload[1])
	rest := payload[2:]
	if len(rest) < idLen+4+8 {
		return Position{}, ErrMalformed
	}

	id := string(rest[:idLen])
	rest = rest[idLen:]

	pos, err := convertx.BytesToInt32(rest[:4])
	if err != nil {
		return Position{}, err
	}
	expiry, err := convertx.BytesToInt64(rest[4:12])
	if err != nil {
		return Position{}, err
	}

	return Position{ID: id, Pos: pos, Expiry: expiry}, nil
}

func (s *Signer) encrypt(plainText []byte) ([]byte, error) {
	if len(plainText) < 1 {
		return nil, ErrEmptyInput
	}

	padded := pkcs7Pad(plainText)

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("token: new cipher: %w", err)
	}

	cipherText := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, s.iv)
	cbc.CryptBlocks(cipherText, padded)
	return cipherText, nil
}

func (s *Signer) decrypt(cipherText []byte) ([]byte, error) {
	if len(cipherText) < 1 {
		return nil, ErrEmptyInput
	}
	if len(cipherText)%aes.BlockSize != 0 {
		return nil, ErrNotBlockAligned
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("token: new cipher: %w", err)
	}

	plainText := make([]byte, len(cipherText))
	cbc := cipher.NewCBCDecrypter(block, s.iv)
	cbc.CryptBlocks(plainText, cipherText)
	return pkcs7RemovePad(plainText)
}

func pkcs7Pad(src []byte) []byte {
	remain := len(src) % aes.BlockSize
	padLen := aes.BlockSize - remain
	trailing := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(src, trailing...)
}

func pkcs7RemovePad(src []byte) ([]byte, error) {
	length := len(src)
	if length == 0 {
		return nil, ErrInvalidPadding
	}

	padLen := int(src[length-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > length {
		return nil, ErrInvalidPadding
	}

	check := bytes.Repeat([]byte{byte(padLen)}, padLen)
	if subtle.ConstantTimeCompare(src[length-padLen:], check) != 1 {
		return nil, ErrInvalidPadding
	}

	return src[:length-padLen], nil
}
