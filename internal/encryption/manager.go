// Package encryption envelope-encrypts login-log PII (email, source IP)
// before it is written to external stores. Disabled by default; when KMS is
// off, values pass through untouched so the dev admin panel stays readable.
package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"mycore-gateway/internal/config"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// encPrefix marks envelope-encrypted values so readers can tell them from
// plaintext written while KMS was disabled.
const encPrefix = "enc:v1:"

type EncryptionManager struct {
	kmsClient *kms.Client
	config    *config.Config
}

func NewEncryptionManager(cfg *config.Config, kmsClient *kms.Client) *EncryptionManager {
	return &EncryptionManager{
		kmsClient: kmsClient,
		config:    cfg,
	}
}

// Enabled reports whether values will actually be encrypted.
func (em *EncryptionManager) Enabled() bool {
	return em.config.KMS.Enabled && em.kmsClient != nil
}

// EncryptField envelope-encrypts one value: a fresh KMS data key encrypts the
// plaintext with AES-GCM, and the wrapped key travels with the ciphertext.
func (em *EncryptionManager) EncryptField(ctx context.Context, plaintext string) (string, error) {
	if !em.Enabled() {
		return plaintext, nil
	}

	out, err := em.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(em.config.KMS.KeyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return "", fmt.Errorf("%w: generate data key: %v", ErrEncryptionFailed, err)
	}

	block, err := aes.NewCipher(out.Plaintext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return encPrefix +
		base64.RawStdEncoding.EncodeToString(out.CiphertextBlob) + ":" +
		base64.RawStdEncoding.EncodeToString(sealed), nil
}

// DecryptField reverses EncryptField. Plaintext values (written while KMS was
// disabled) are returned as-is.
func (em *EncryptionManager) DecryptField(ctx context.Context, value string) (string, error) {
	if !strings.HasPrefix(value, encPrefix) {
		return value, nil
	}
	if em.kmsClient == nil {
		return "", fmt.Errorf("%w: kms client not configured", ErrDecryptionFailed)
	}

	parts := strings.SplitN(strings.TrimPrefix(value, encPrefix), ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: malformed envelope", ErrDecryptionFailed)
	}

	wrappedKey, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	sealed, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	out, err := em.kmsClient.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: wrappedKey})
	if err != nil {
		return "", fmt.Errorf("%w: unwrap data key: %v", ErrDecryptionFailed, err)
	}

	block, err := aes.NewCipher(out.Plaintext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(sealed) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: short ciphertext", ErrDecryptionFailed)
	}

	plaintext, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}
