package config

import (
	"fmt"
	"time"
)

type EncryptionConfig struct {
	Enabled   bool
	SecretKey RedactedString
}

type CredentialsConfig struct {
	DurableTTLHours int
	Encryption      EncryptionConfig
}

func (c CredentialsConfig) Validate() error {
	if c.DurableTTLHours < 0 {
		return fmt.Errorf("durable credentials TTL hours (%d) cannot be negative", c.DurableTTLHours)
	}
	if c.Encryption.Enabled && len(c.Encryption.SecretKey) != 32 {
		return fmt.Errorf(
			"credential encryption key has to be 32 bytes long, the provided one is %d long",
			len(c.Encryption.SecretKey),
		)
	}
	return nil
}

func (c CredentialsConfig) DurableTTL() time.Duration {
	return time.Duration(c.DurableTTLHours) * time.Hour
}
