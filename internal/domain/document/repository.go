package document

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists documents of every kind. Each kind maps to its own
// header and line tables.
type Repository interface {
	// FindByID loads the document with its lines
	FindByID(ctx context.Context, kind Kind, id uuid.UUID) (*Document, error)

	// List returns one page of documents, newest first
	List(ctx context.Context, kind Kind, filter ListFilter) ([]Document, int64, error)

	// Create inserts the header and all lines
	Create(ctx context.Context, doc *Document) error

	// Update writes header fields and status if doc.Version is still
	// current, then bumps the version. Lines are not touched.
	Update(ctx context.Context, doc *Document) error

	// ReplaceLines deletes the stored lines of doc and inserts doc.Lines
	ReplaceLines(ctx context.Context, doc *Document) error

	// MarkLinePosted stamps a line leg as posted. A leg that is already
	// stamped yields ErrLineAlreadyPosted, so a leg posts at most once.
	MarkLinePosted(ctx context.Context, kind Kind, lineID uuid.UUID, inbound bool, at time.Time) error
}
