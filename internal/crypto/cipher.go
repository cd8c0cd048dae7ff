package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	KeySize   = 32
	NonceSize = 12
	tagSize   = 16
)

var ErrDecryption = errors.New("message could not be decrypted")

// Key ключ AES-256
type Key [KeySize]byte

// DecryptionError возвращается, когда шифртекст, iv и ключ не подходят друг к другу
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrDecryption, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrDecryption, e.Reason)
}

// Unwrap отдает ErrDecryption и исходную ошибку base64 или GCM, если она есть
func (e *DecryptionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecryption}
	}
	return []error{ErrDecryption, e.Err}
}

// DeriveKey берет первые 32 байта парольной фразы, короткая фраза дополняется нулями
func DeriveKey(passphrase string) Key {
	var key Key
	copy(key[:], passphrase)
	return key
}

// Encrypt шифрует текст со свежим случайным iv. Оба результата в std base64
func Encrypt(plaintext string, key Key) (cipherText, iv string, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), base64.StdEncoding.EncodeToString(nonce), nil
}

// Decrypt расшифровывает результат Encrypt. Частичный текст никогда не возвращается
func Decrypt(cipherText string, key Key, iv string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return "", &DecryptionError{Reason: "ciphertext is not base64", Err: err}
	}
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", &DecryptionError{Reason: "iv is not base64", Err: err}
	}
	if len(nonce) != NonceSize {
		return "", &DecryptionError{Reason: fmt.Sprintf("iv has %d bytes, want %d", len(nonce), NonceSize)}
	}
	if len(sealed) < tagSize {
		return "", &DecryptionError{Reason: "ciphertext is truncated"}
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &DecryptionError{Reason: "authentication failed", Err: err}
	}
	return string(plain), nil
}

func newGCM(key Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}
