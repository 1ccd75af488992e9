package chat

import (
	"context"

	"chatsync/pkg/docstore"
)

// Store is the document store surface the chat core runs on.
// *docstore.Client satisfies it.
type Store interface {
	Get(ctx context.Context, path string) (*docstore.Document, error)
	List(ctx context.Context, collection string, orders ...docstore.Order) ([]*docstore.Document, error)
	QueryEquals(ctx context.Context, collection, field string, value any) ([]*docstore.Document, error)
	Add(ctx context.Context, collection string, fields docstore.Fields) (string, error)
	AddUnique(ctx context.Context, collection, field string, value any, fields docstore.Fields) (string, bool, error)
	Update(ctx context.Context, path string, fields docstore.Fields) error
	Subscribe(ctx context.Context, path string, orders ...docstore.Order) (*docstore.Subscription, error)
}

var _ Store = (*docstore.Client)(nil)
