// Package store provides the persistent backings of the cooldown gate.
//
// Every backing implements Reserve as a single conditional write, so two
// concurrent evaluations of the same entity cannot both pass the gate.
package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"

	"incident-detector/internal/model"
)

// Store is a cooldown backing.
type Store interface {
	// Reserve records now as the last alert of entityID if no alert was
	// recorded within cooldown, and reports whether it did.
	Reserve(ctx context.Context, entityID string, now time.Time, cooldown time.Duration) (bool, error)
	// Last returns the recorded alert of entityID, or nil if there is none.
	Last(ctx context.Context, entityID string) (*model.CooldownRecord, error)
	// Close releases the backing's resources.
	Close() error
}

// Options carries what the backings need beyond the identifier.
type Options struct {
	AWS    aws.Config // used by dynamodb://
	Logger zerolog.Logger
}

// Open connects to the backing named by id:
//
//	dynamodb://<table>
//	redis://[:password@]host:port[/db]  (rediss:// for TLS)
//	postgres://... or postgresql://...
//	memory://
func Open(ctx context.Context, id string, opts Options) (Store, error) {
	u, err := url.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid cooldown store %q: %w", id, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory":
		return NewMemory(), nil
	case "dynamodb":
		table := u.Host
		if table == "" {
			table = strings.Trim(u.Path, "/")
		}
		if table == "" {
			return nil, fmt.Errorf("dynamodb cooldown store requires a table name")
		}
		return NewDynamoDBFromConfig(opts.AWS, table, opts.Logger), nil
	case "redis", "rediss":
		return OpenRedis(ctx, id, opts.Logger)
	case "postgres", "postgresql":
		return OpenPostgres(ctx, id, opts.Logger)
	default:
		return nil, fmt.Errorf("unsupported cooldown store scheme %q", u.Scheme)
	}
}
