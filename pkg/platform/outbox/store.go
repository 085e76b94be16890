package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Appender adds an entry outside any business transaction. Registration
// stores write entries inside their own Save instead.
type Appender interface {
	Append(ctx context.Context, entry *Entry) error
}

// Relay is the read side the publishing worker drives. FetchUnprocessed
// returns pending entries oldest first.
type Relay interface {
	FetchUnprocessed(ctx context.Context, limit int) ([]*Entry, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	CountPending(ctx context.Context) (int64, error)
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Store is implemented by the memory, bolt and postgres outboxes. All of
// them are safe for concurrent use.
type Store interface {
	Appender
	Relay
}
