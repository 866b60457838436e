package backend

import (
	"context"

	"fluxo/internal/services"
	"fluxo/internal/store"
)

// Result is an opened store plus the change publisher, which stays a nil
// interface when AMQP is not configured. Cleanup releases both.
type Result struct {
	Store     store.Store
	Publisher services.ChangePublisher
	Cleanup   func() error
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// Types lists the supported backends, memory first.
func Types() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend}
}

func (bt BackendType) String() string { return string(bt) }

func (bt BackendType) IsValid() bool {
	for _, t := range Types() {
		if bt == t {
			return true
		}
	}
	return false
}
