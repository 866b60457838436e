package backend

import (
	"errors"
	"fmt"

	"fluxo/internal/config"
)

type Config struct {
	Type BackendType

	SQLiteDBPath string
	DatabaseURL  string
	// DataDirectory holds the memory backend's seed files; "data" when empty.
	DataDirectory string

	// Change events; empty AMQPURL disables publishing for every backend.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

func FromAppConfig(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, errors.New("app config is nil")
	}
	c := Config{
		Type:          BackendType(app.DataBackend),
		SQLiteDBPath:  app.SQLiteDBPath,
		DatabaseURL:   app.DatabaseURL,
		DataDirectory: app.DataDirectory,
		AMQPURL:       app.AMQPURL,
		AMQPExchange:  app.AMQPExchange,
		AMQPQueue:     app.AMQPQueue,
	}
	if !c.Type.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", app.DataBackend)
	}
	return c, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			errs = append(errs, errors.New("SQLite database path is required for sqlite backend"))
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("database URL is required for postgres backend"))
		}
	case MemoryBackend:
	default:
		errs = append(errs, fmt.Errorf("invalid backend type: %q (one of %v)", c.Type, TypeNames()))
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		errs = append(errs, errors.New("AMQP exchange and queue are required when an AMQP URL is set"))
	}
	return errors.Join(errs...)
}

func TypeNames() []string {
	types := Types()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
