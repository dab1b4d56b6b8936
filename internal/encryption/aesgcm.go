package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic opens every encrypted stream.
var Magic = []byte("S3PENC01")

// ErrBadHeader is returned when a stream does not start with Magic.
var ErrBadHeader = errors.New("invalid encrypted stream header")

const chunkSize = 32 * 1024

// Stream layout: Magic, 8-byte nonce prefix, then chunks of
// [uint32 plaintext length][ciphertext], ended by a zero length. Each chunk
// nonce is the prefix followed by a big-endian chunk counter.

func newGCM(password string) (cipher.AEAD, error) {
	if password == "" {
		return nil, fmt.Errorf("encryption password is empty")
	}

	key := sha256.Sum256([]byte(password))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	if gcm.NonceSize() != 12 {
		return nil, fmt.Errorf("unexpected GCM nonce size: %d", gcm.NonceSize())
	}
	return gcm, nil
}

// EncryptAESGCM encrypts src into dst using AES-256-GCM.
func EncryptAESGCM(dst io.Writer, src io.Reader, password string) (int64, error) {
	gcm, err := newGCM(password)
	if err != nil {
		return 0, err
	}

	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce[:8]); err != nil {
		return 0, err
	}

	if _, err := dst.Write(Magic); err != nil {
		return 0, err
	}
	if _, err := dst.Write(nonce[:8]); err != nil {
		return 0, err
	}

	buf := make([]byte, chunkSize)
	var (
		counter uint32
		lenBuf  [4]byte
		total   int64
	)

	for {
		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			binary.BigEndian.PutUint32(nonce[8:], counter)
			counter++

			binary.BigEndian.PutUint32(lenBuf[:], uint32(n))
			if _, err := dst.Write(lenBuf[:]); err != nil {
				return total, err
			}
			if _, err := dst.Write(gcm.Seal(nil, nonce, buf[:n], nil)); err != nil {
				return total, err
			}
			total += int64(n)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return total, readErr
		}
	}

	binary.BigEndian.PutUint32(lenBuf[:], 0)
	if _, err := dst.Write(lenBuf[:]); err != nil {
		return total, err
	}
	return total, nil
}

//DecryptAESGCM just reverses EncryptAESGCM

func DecryptAESGCM(dst io.Writer, src io.Reader, password string) (int64, error) {
	gcm, err := newGCM(password)
	if err != nil {
		return 0, err
	}

	gotMagic := make([]byte, len(Magic))
	if _, err := io.ReadFull(src, gotMagic); err != nil {
		return 0, err
	}
	if !bytes.Equal(gotMagic, Magic) {
		return 0, ErrBadHeader
	}

	nonce := make([]byte, 12)
	if _, err := io.ReadFull(src, nonce[:8]); err != nil {
		return 0, err
	}

	var (
		counter uint32
		lenBuf  [4]byte
		total   int64
	)

	for {
		if _, err := io.ReadFull(src, lenBuf[:]); err != nil {
			return total, err
		}
		plainLen := binary.BigEndian.Uint32(lenBuf[:])
		if plainLen == 0 {
			break
		}
		if plainLen > chunkSize {
			return total, fmt.Errorf("chunk length %d exceeds %d", plainLen, chunkSize)
		}

		// ciphertext length = plaintext + overhead
		cipherBuf := make([]byte, int(plainLen)+gcm.Overhead())
		if _, err := io.ReadFull(src, cipherBuf); err != nil {
			return total, err
		}
		binary.BigEndian.PutUint32(nonce[8:], counter)
		counter++

		plaintext, err := gcm.Open(nil, nonce, cipherBuf, nil)
		if err != nil {
			return total, fmt.Errorf("decrypt failed: %w", err)
		}

		if _, err := dst.Write(plaintext); err != nil {
			return total, err
		}
		total += int64(len(plaintext))
	}

	return total, nil
}
