package model

import (
	"time"

	"github.com/google/uuid"
)

// DatabaseType identifies the kind of backing database behind a store
type DatabaseType string

const (
	DatabaseTypeDocument DatabaseType = "mongodb"
	DatabaseTypePostgres DatabaseType = "postgresql"
	DatabaseTypeMySQL    DatabaseType = "mysql"
)

// Valid reports whether t is one of the supported backing database kinds
func (t DatabaseType) Valid() bool {
	switch t {
	case DatabaseTypeDocument, DatabaseTypePostgres, DatabaseTypeMySQL:
		return true
	}
	return false
}

// Relational reports whether t accepts raw SQL queries
func (t DatabaseType) Relational() bool {
	return t == DatabaseTypePostgres || t == DatabaseTypeMySQL
}

// ConnectionStatus is the outcome of the last connectivity test
type ConnectionStatus string

const (
	ConnectionUntested ConnectionStatus = "untested"
	ConnectionSuccess  ConnectionStatus = "success"
	ConnectionFailed   ConnectionStatus = "failed"
)

// StoreDatabase represents the store_databases table in the master database
type StoreDatabase struct {
	ID                        uuid.UUID        `json:"id"`
	StoreID                   string           `json:"store_id"`
	DatabaseType              DatabaseType     `json:"database_type"`
	ConnectionStringEncrypted string           `json:"connection_string_encrypted"`
	IsActive                  bool             `json:"is_active"`
	ConnectionStatus          ConnectionStatus `json:"connection_status"`
	LastConnectionTest        *time.Time       `json:"last_connection_test,omitempty"`
	CreatedAt                 time.Time        `json:"created_at"`
	UpdatedAt                 time.Time        `json:"updated_at"`
}
