package crypto

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/store-connection-service/internal/model"
	"github.com/teresa-solution/store-connection-service/internal/monitoring"
)

// FieldFailure names a sensitive field that was left in its prior state
type FieldFailure struct {
	Field string
	Err   error
}

func (f FieldFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Field, f.Err)
}

func (f FieldFailure) Unwrap() []error {
	return []error{model.ErrFieldCipher, f.Err}
}

// FieldReport is the per-field outcome of applying the cipher to a record
type FieldReport struct {
	Processed []string
	Legacy    []string
	Failed    []FieldFailure
}

// OK reports whether every sensitive field was processed
func (r FieldReport) OK() bool {
	return len(r.Failed) == 0
}

// EncryptFields returns a copy of data with the sensitive fields of
// integrationType encrypted. Values already carrying the marker are kept
// as they are.
func (c *Cipher) EncryptFields(integrationType string, data map[string]any) (map[string]any, FieldReport) {
	return c.applyFields("encrypt", integrationType, data, func(value string) (string, bool, error) {
		if IsEncrypted(value) {
			return value, false, nil
		}
		out, err := c.Encrypt(value)
		return out, false, err
	})
}

// DecryptFields returns a copy of data with the sensitive fields of
// integrationType decrypted, including the legacy second pass.
func (c *Cipher) DecryptFields(integrationType string, data map[string]any) (map[string]any, FieldReport) {
	return c.applyFields("decrypt", integrationType, data, c.DecryptLegacy)
}

func (c *Cipher) applyFields(op, integrationType string, data map[string]any, apply func(string) (string, bool, error)) (map[string]any, FieldReport) {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}

	var report FieldReport
	for _, field := range SensitiveFields(integrationType) {
		raw, ok := out[field]
		if !ok || raw == nil {
			continue
		}

		value, isString := raw.(string)
		if !isString {
			report.fail(op, integrationType, field, fmt.Errorf("expected string value, got %T", raw))
			continue
		}
		if value == "" {
			continue
		}

		result, legacy, err := apply(value)
		if err != nil {
			report.fail(op, integrationType, field, err)
			continue
		}
		out[field] = result
		report.Processed = append(report.Processed, field)
		if legacy {
			report.Legacy = append(report.Legacy, field)
		}
	}
	return out, report
}

func (r *FieldReport) fail(op, integrationType, field string, err error) {
	log.Warn().
		Err(err).
		Str("integration_type", integrationType).
		Str("field", field).
		Msgf("Failed to %s sensitive field, leaving it unchanged", op)
	monitoring.CipherFieldFailures.WithLabelValues(op).Inc()
	r.Failed = append(r.Failed, FieldFailure{Field: field, Err: err})
}
