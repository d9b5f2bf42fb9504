package monitoring

import (
	"github.com/rs/zerolog/log"
)

// Alert records an operator-facing alert (logged until a pager integration exists)
func Alert(message string, labels map[string]string) {
	fields := make(map[string]any, len(labels))
	for k, v := range labels {
		fields[k] = v
	}
	log.Error().
		Str("alert", message).
		Fields(fields).
		Msg("ALERT: Store connection issue detected")
}
