package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teresa-solution/store-connection-service/internal/model"
)

// Credentials is the decrypted connection payload stored in
// store_databases.connection_string_encrypted
type Credentials struct {
	URL         string `json:"url,omitempty"`
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	Database    string `json:"database,omitempty"`
	User        string `json:"user,omitempty"`
	Password    string `json:"password,omitempty"`
	SSLMode     string `json:"ssl_mode,omitempty"`
	ServiceKey  string `json:"service_key,omitempty"`
	ServiceUser string `json:"service_user,omitempty"`
}

// ParseCredentials accepts either a JSON object or a bare connection URL
func ParseCredentials(payload string) (Credentials, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Credentials{}, fmt.Errorf("%w: empty connection payload", model.ErrMissingCredential)
	}

	if !strings.HasPrefix(payload, "{") {
		return Credentials{URL: payload}, nil
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(payload), &creds); err != nil {
		return Credentials{}, fmt.Errorf("decoding connection payload: %w", err)
	}
	return creds, nil
}

// Encode serialises the credentials for encryption at rest
func (c Credentials) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Validate checks the fields required by dbType without opening anything
func (c Credentials) Validate(dbType model.DatabaseType) error {
	switch dbType {
	case model.DatabaseTypePostgres, model.DatabaseTypeMySQL:
		if c.URL != "" {
			return nil
		}
		if c.Host == "" {
			return fmt.Errorf("%w: host", model.ErrMissingCredential)
		}
		if c.Database == "" {
			return fmt.Errorf("%w: database", model.ErrMissingCredential)
		}
		return nil
	case model.DatabaseTypeDocument:
		if c.URL == "" {
			return fmt.Errorf("%w: url", model.ErrMissingCredential)
		}
		if c.ServiceKey == "" {
			return fmt.Errorf("%w: service_key", model.ErrMissingCredential)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", model.ErrUnsupportedBackendType, dbType)
	}
}

func (c Credentials) portOr(def int) int {
	if c.Port > 0 {
		return c.Port
	}
	return def
}

func (c Credentials) userOr(def string) string {
	if c.User != "" {
		return c.User
	}
	return def
}
