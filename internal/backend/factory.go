package backend

import (
	"context"
	"errors"
	"fmt"

	"fluxo/internal/amqp"
	"fluxo/internal/log"
	"fluxo/internal/services"
	"fluxo/internal/storage"
	"fluxo/internal/storage/memory"
	"fluxo/internal/storage/postgres"
	"fluxo/internal/store"
)

type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory logs through logger; nil logs nothing.
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend opens the store for config.Type and, when configured, an
// AMQP publisher. A broker failure is logged and leaves Publisher nil.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		s   store.Store
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		s, err = storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case PostgresBackend:
		s, err = postgres.Connect(ctx, config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
	case MemoryBackend:
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		s = memory.NewFromFiles(dataDir)
		f.logger.Info("Initialized memory backend", "data_directory", dataDir)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	result := &Result{Store: s, Cleanup: s.Close}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change events", log.FieldError, err.Error())
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.Publisher = client
			result.Cleanup = func() error {
				return errors.Join(client.Close(), s.Close())
			}
		}
	}

	return result, nil
}

var _ services.ChangePublisher = (*amqp.Client)(nil)
