package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"filippo.io/age"

	"github.com/dohr-michael/studio/internal/config"
)

// ResolveConfig decrypts every ENC[age:...] credential of cfg in place.
// Without an identity file, encrypted values are left untouched and a
// warning is logged.
func ResolveConfig(cfg *config.Config, keyPath string) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"providers.gemini.api_key", &cfg.Providers.Gemini.APIKey},
		{"storage.dsn", &cfg.Storage.DSN},
		{"storage.redis.password", &cfg.Storage.Redis.Password},
		{"assets.minio.access_key", &cfg.Assets.MinIO.AccessKey},
		{"assets.minio.secret_key", &cfg.Assets.MinIO.SecretKey},
	}

	var identity age.Identity
	for _, f := range fields {
		if !IsEncrypted(*f.value) {
			continue
		}
		if identity == nil {
			id, err := LoadIdentity(keyPath)
			if errors.Is(err, fs.ErrNotExist) {
				slog.Warn("encrypted config value but no age key", "field", f.name, "key", keyPath)
				return nil
			}
			if err != nil {
				return err
			}
			identity = id
		}
		plain, err := Decrypt(*f.value, identity)
		if err != nil {
			return fmt.Errorf("decrypt %s: %w", f.name, err)
		}
		*f.value = plain
	}
	return nil
}
