// Package archive persists finished transcript/reply exchanges for offline
// review. The archive is a write-only audit log: the pipeline appends to it
// after the generate stage and never reads it back, so conversation state
// still dies with the connection.
//
// The store is optional. Use Noop when archiving is disabled; archive
// failures are logged by the caller and never affect pipeline output.
package archive

import (
	"context"
	"fmt"
	"time"
)

// Exchange is one completed transcript/reply pair.
type Exchange struct {
	// ConnectionID is the server-assigned session id.
	ConnectionID string

	// Transcript is the recognized user speech.
	Transcript string

	// Reply is the generated answer.
	Reply string

	// CreatedAt is when the exchange completed.
	CreatedAt time.Time
}

// Store persists exchanges.
type Store interface {
	// SaveExchange appends one exchange.
	SaveExchange(ctx context.Context, ex Exchange) error

	// Close releases the store's resources.
	Close() error
}

// Noop is a Store that discards everything. It stands in when archiving is
// disabled.
type Noop struct{}

// SaveExchange discards ex.
func (Noop) SaveExchange(context.Context, Exchange) error { return nil }

// Close does nothing.
func (Noop) Close() error { return nil }

var _ Store = Noop{}

// Open creates a Store for the given driver. Supported drivers are
// "postgres", "sqlite", and "" (disabled, returns Noop).
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "":
		return Noop{}, nil
	case "postgres":
		return OpenPostgres(ctx, dsn)
	case "sqlite":
		return OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("archive: unsupported driver %q; supported: postgres, sqlite", driver)
	}
}
