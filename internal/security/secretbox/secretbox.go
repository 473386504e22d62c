package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	masterKeyEnvVar   = "LINKJOHN_MASTER_KEY"
	nonceSizeGCM      = 12  // AES-GCM nonce recomendado (96 bits)
	requiredKeyLength = 32  // 32 bytes => AES-256
	sep               = "|" // nonce|ciphertext (ambos en base64)

	// keyInfo rotula la derivación: el master nunca cifra directo, cada
	// propósito deriva su propia clave.
	keyInfo = "linkjohn/credential-secrets/v1"
)

var (
	derivedKey []byte
	keyOnce    sync.Once
	loadErr    error
	mu         sync.RWMutex
)

// ensureLoaded carga el master desde LINKJOHN_MASTER_KEY (base64, 32 bytes)
// una sola vez y deriva la clave AES con HKDF-SHA256.
func ensureLoaded() error {
	keyOnce.Do(func() {
		kb64 := strings.TrimSpace(os.Getenv(masterKeyEnvVar))
		if kb64 == "" {
			loadErr = fmt.Errorf("%s no seteada; genere una clave con: openssl rand -base64 32", masterKeyEnvVar)
			return
		}
		master, err := base64.StdEncoding.DecodeString(kb64)
		if err != nil {
			loadErr = fmt.Errorf("decode %s: %w", masterKeyEnvVar, err)
			return
		}
		if len(master) != requiredKeyLength {
			loadErr = fmt.Errorf("%s debe decodificar a %d bytes, obtuvo %d", masterKeyEnvVar, requiredKeyLength, len(master))
			return
		}
		k, err := deriveKey(master)
		if err != nil {
			loadErr = err
			return
		}
		mu.Lock()
		derivedKey = k
		mu.Unlock()
	})
	return loadErr
}

// deriveKey expande el master a la clave de cifrado via HKDF-SHA256.
func deriveKey(master []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(keyInfo))
	k := make([]byte, requiredKeyLength)
	if _, err := io.ReadFull(r, k); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return k, nil
}

// IsReady reporta si la master key del entorno carga y deriva bien. Dispara
// la carga si todavía no ocurrió (útil como gate de arranque).
func IsReady() bool {
	return ensureLoaded() == nil
}

func gcmCipher() (cipher.AEAD, error) {
	mu.RLock()
	key := make([]byte, len(derivedKey))
	copy(key, derivedKey)
	mu.RUnlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return aesgcm, nil
}

// Encrypt cifra plainText y devuelve base64(nonce)|base64(ciphertext).
func Encrypt(plainText string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}

	aesgcm, err := gcmCipher()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}

	ct := aesgcm.Seal(nil, nonce, []byte(plainText), nil)

	nonceB64 := base64.StdEncoding.EncodeToString(nonce)
	ctB64 := base64.StdEncoding.EncodeToString(ct)
	return nonceB64 + sep + ctB64, nil
}

// Decrypt recibe base64(nonce)|base64(ciphertext) y devuelve el texto plano.
func Decrypt(cipherText string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}

	parts := strings.Split(cipherText, sep)
	if len(parts) != 2 {
		return "", errors.New("formato inválido: esperado base64(nonce)|base64(ciphertext)")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(nonce) != nonceSizeGCM {
		return "", fmt.Errorf("nonce inválido: esperado %d bytes, obtuvo %d", nonceSizeGCM, len(nonce))
	}

	aesgcm, err := gcmCipher()
	if err != nil {
		return "", err
	}

	pt, err := aesgcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}

// --- Helpers para tests ---

// UnsafeResetForTests borra estado interno. Usar sólo en tests.
func UnsafeResetForTests() {
	mu.Lock()
	derivedKey = nil
	mu.Unlock()
	keyOnce = sync.Once{}
	loadErr = nil
}
