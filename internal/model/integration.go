package model

import (
	"time"

	"github.com/google/uuid"
)

// SyncStatus tracks the data synchronisation state of an integration
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
)

// IntegrationConfig represents the integration_configs table
type IntegrationConfig struct {
	ID                 uuid.UUID        `json:"id"`
	StoreID            string           `json:"store_id"`
	IntegrationType    string           `json:"integration_type"`
	ConfigData         map[string]any   `json:"config_data"`
	IsActive           bool             `json:"is_active"`
	SyncStatus         SyncStatus       `json:"sync_status"`
	SyncError          string           `json:"sync_error,omitempty"`
	LastSyncAt         *time.Time       `json:"last_sync_at,omitempty"`
	ConnectionStatus   ConnectionStatus `json:"connection_status"`
	ConnectionError    string           `json:"connection_error,omitempty"`
	ConnectionTestedAt *time.Time       `json:"connection_tested_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Clone returns a copy whose ConfigData map can be mutated independently
func (c *IntegrationConfig) Clone() *IntegrationConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.ConfigData = make(map[string]any, len(c.ConfigData))
	for k, v := range c.ConfigData {
		out.ConfigData[k] = v
	}
	return &out
}
