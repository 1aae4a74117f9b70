// Package security provides at-rest protection for card data.
package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrDecryption is returned for malformed or tampered ciphertext.
	// Callers treat it as fatal for the record being processed.
	ErrDecryption = errors.New("decryption failed")

	// ErrInvalidKey is returned when key material has the wrong size.
	ErrInvalidKey = errors.New("invalid encryption key material")
)

// Encryptor performs deterministic AES-CBC encryption with a fixed key and IV.
// Equal plaintexts yield equal ciphertexts, which allows lookups by value;
// uniqueness of card numbers is guaranteed by the sequence, not by the cipher.
type Encryptor struct {
	block cipher.Block
	iv    []byte
}

// NewEncryptor creates an encryptor. Key must be 16, 24 or 32 bytes, IV 16 bytes.
func NewEncryptor(key, iv []byte) (*Encryptor, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrInvalidKey, aes.BlockSize, len(iv))
	}

	return &Encryptor{
		block: block,
		iv:    bytes.Clone(iv),
	}, nil
}

// Encrypt returns base64(AES-CBC(PKCS#7(plain))).
func (e *Encryptor) Encrypt(plain string) (string, error) {
	padded := pkcs7Pad([]byte(plain), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(e.block, e.iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Any malformed input yields ErrDecryption.
func (e *Encryptor) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrDecryption, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d is not a multiple of block size", ErrDecryption, len(raw))
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(e.block, e.iv).CryptBlocks(out, raw)

	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(plain), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("bad padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("bad padding")
		}
	}
	return data[:len(data)-n], nil
}
