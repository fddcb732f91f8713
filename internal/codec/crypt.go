// Package codec implements the frame codec (component B): the
// sentinel/length framing on the wire, the compression stage, and the
// optional AES-256-CBC encryption stage, plus the inbound framing state
// machine §4.B specifies.
package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const (
	aesKeySize = 32 // AES-256
	aesIVSize  = 16 // block size
)

// GenerateKeyIV produces a fresh session key/IV pair, used by the server
// on a successful handshake (§4.C: "generate fresh 32-byte key and
// 16-byte IV"). Standard-library justification: crypto/aes's block size
// and key-length constants are exactly these numbers; no ecosystem helper
// adds anything over crypto/rand.Read here.
func GenerateKeyIV() (key, iv []byte, err error) {
	key = make([]byte, aesKeySize)
	if _, err = rand.Read(key); err != nil {
		return nil, nil, fmt.Errorf("codec: generate key: %w", err)
	}
	iv = make([]byte, aesIVSize)
	if _, err = rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("codec: generate iv: %w", err)
	}
	return key, iv, nil
}

// EncryptCBC PKCS7-pads plaintext to the AES block size and encrypts it
// with AES-256-CBC under key/iv.
func EncryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: new cipher: %w", err)
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("codec: iv length %d != block size %d", len(iv), block.BlockSize())
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// DecryptCBC reverses EncryptCBC, removing PKCS7 padding.
func DecryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: new cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("codec: ciphertext is not a multiple of the block size")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, block.BlockSize())
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte(nil), data...), padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("codec: cannot unpad empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("codec: invalid PKCS7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("codec: invalid PKCS7 padding")
		}
	}
	return data[:len(data)-padLen], nil
}
