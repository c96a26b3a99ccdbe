package core

import (
	"fmt"
	"strings"
)

// EncryptedPrefix 配置中加密凭证的前缀
const EncryptedPrefix = "enc:"

// NoOpSecretProvider 明文透传 SecretProvider，未配置 DOCQA_SECRET_KEY 时使用
type NoOpSecretProvider struct{}

func NewNoOpSecretProvider() *NoOpSecretProvider {
	return &NoOpSecretProvider{}
}

func (s *NoOpSecretProvider) Decrypt(ciphertext string) (string, error) {
	return ciphertext, nil
}

func (s *NoOpSecretProvider) Encrypt(plaintext string) (string, error) {
	return plaintext, nil
}

// RevealCredentials 解密带 "enc:" 前缀的凭证，其他值原样返回
func RevealCredentials(sp SecretProvider, credentials []string) ([]string, error) {
	out := make([]string, 0, len(credentials))
	for i, c := range credentials {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if strings.HasPrefix(c, EncryptedPrefix) {
			if _, noop := sp.(*NoOpSecretProvider); noop || sp == nil {
				return nil, fmt.Errorf("%w: credential #%d is encrypted but DOCQA_SECRET_KEY is not set", ErrConfiguration, i+1)
			}
			plain, err := sp.Decrypt(strings.TrimPrefix(c, EncryptedPrefix))
			if err != nil {
				return nil, fmt.Errorf("%w: decrypt credential #%d: %v", ErrConfiguration, i+1, err)
			}
			c = plain
		}
		out = append(out, c)
	}
	return out, nil
}
