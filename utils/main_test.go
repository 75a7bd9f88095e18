package utils

import (
	"os"
	"testing"

	"reachloop/config"
)

func TestMain(m *testing.M) {
	// AES needs a 32 byte key; the same key signs test JWTs and
	// tracking tokens.
	config.AppConfig.EncryptionKey = "0123456789abcdef0123456789abcdef"
	os.Exit(m.Run())
}
