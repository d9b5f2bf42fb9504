package crypto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/store-connection-service/internal/model"
)

func TestSensitiveFields(t *testing.T) {
	assert.Equal(t, []string{"accessToken", "apiKey", "apiSecret", "webhookSecret"}, SensitiveFields("shopify"))
	assert.Empty(t, SensitiveFields("no-such-integration"))
	assert.Empty(t, SensitiveFields(""))

	// callers must not be able to mutate the catalog
	fields := SensitiveFields("shopify")
	fields[0] = "changed"
	assert.Equal(t, "accessToken", SensitiveFields("shopify")[0])
}

func TestEncryptFields_OnlySensitiveFields(t *testing.T) {
	c := testCipher(t)
	data := map[string]any{
		"accessToken": "abc123",
		"shopDomain":  "demo.myshopify.com",
		"apiVersion":  "2024-01",
	}

	out, report := c.EncryptFields("shopify", data)
	require.True(t, report.OK())
	assert.Equal(t, []string{"accessToken"}, report.Processed)
	assert.True(t, IsEncrypted(out["accessToken"].(string)))
	assert.Equal(t, "demo.myshopify.com", out["shopDomain"])

	// input is not mutated
	assert.Equal(t, "abc123", data["accessToken"])
}

func TestEncryptFields_SkipsAlreadyEncrypted(t *testing.T) {
	c := testCipher(t)
	ct, err := c.Encrypt("abc123")
	require.NoError(t, err)

	out, report := c.EncryptFields("shopify", map[string]any{"accessToken": ct})
	require.True(t, report.OK())
	assert.Equal(t, ct, out["accessToken"])
}

func TestEncryptFields_UnknownTypeUntouched(t *testing.T) {
	c := testCipher(t)
	data := map[string]any{"token": "abc"}
	out, report := c.EncryptFields("custom", data)
	assert.Equal(t, data, out)
	assert.Empty(t, report.Processed)
	assert.True(t, report.OK())
}

func TestDecryptFields_PartialFailureKeepsOtherFields(t *testing.T) {
	c := testCipher(t)
	good, err := c.Encrypt("abc123")
	require.NoError(t, err)
	bad := EncryptedPrefix + "deadbeef"

	out, report := c.DecryptFields("shopify", map[string]any{
		"accessToken":   good,
		"apiSecret":     bad,
		"webhookSecret": 42,
		"apiKey":        "",
	})

	assert.Equal(t, "abc123", out["accessToken"])
	assert.Equal(t, bad, out["apiSecret"])
	assert.Equal(t, 42, out["webhookSecret"])
	assert.Equal(t, []string{"accessToken"}, report.Processed)

	require.Len(t, report.Failed, 2)
	assert.Equal(t, "apiSecret", report.Failed[0].Field)
	assert.Equal(t, "webhookSecret", report.Failed[1].Field)
	assert.True(t, errors.Is(report.Failed[0], model.ErrFieldCipher))
	assert.False(t, report.OK())
}

func TestDecryptFields_LegacyReported(t *testing.T) {
	c := testCipher(t)
	once, _ := c.Encrypt("abc123")
	twice, _ := c.Encrypt(once)

	out, report := c.DecryptFields("shopify", map[string]any{"accessToken": twice})
	assert.Equal(t, "abc123", out["accessToken"])
	assert.Equal(t, []string{"accessToken"}, report.Legacy)
}

func TestDecryptFields_PlaintextLegacyRows(t *testing.T) {
	c := testCipher(t)
	out, report := c.DecryptFields("shopify", map[string]any{"accessToken": "never-encrypted"})
	assert.Equal(t, "never-encrypted", out["accessToken"])
	assert.True(t, report.OK())
}
