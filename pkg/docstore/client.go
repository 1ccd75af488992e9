package docstore

import (
	"context"
	"errors"
	"sync"
)

// Client is one session's handle on a DB. Writes made through a Client are
// shown to that Client's own subscriptions as pending snapshots before
// they are committed; other sessions only ever see committed state.
type Client struct {
	db *DB

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	closed bool
}

func NewClient(db *DB) *Client {
	return &Client{db: db, subs: make(map[uint64]*Subscription)}
}

func (c *Client) DB() *DB { return c.db }

func (c *Client) Get(ctx context.Context, path string) (*Document, error) {
	return c.db.Get(ctx, path)
}

func (c *Client) List(ctx context.Context, collection string, orders ...Order) ([]*Document, error) {
	return c.db.List(ctx, collection, orders...)
}

func (c *Client) QueryEquals(ctx context.Context, collection, field string, value any) ([]*Document, error) {
	return c.db.QueryEquals(ctx, collection, field, value)
}

// AddUnique is committed directly; a get-or-create has no useful pending
// state.
func (c *Client) AddUnique(ctx context.Context, collection, field string, value any, fields Fields) (string, bool, error) {
	return c.db.AddUnique(ctx, collection, field, value, fields)
}

// Add creates a document with a generated id.
func (c *Client) Add(ctx context.Context, collection string, fields Fields) (string, error) {
	coll, err := collectionPath(collection)
	if err != nil {
		return "", err
	}
	id := NewID()
	if err := c.Set(ctx, joinPath(coll, id), fields); err != nil {
		return "", err
	}
	return id, nil
}

func (c *Client) Set(ctx context.Context, path string, fields Fields) error {
	collection, id, err := docPath(path)
	if err != nil {
		return err
	}
	if pending, err := prepareFields(fields, nil); err == nil {
		c.pushPending(collection, id, func(prev *Document) map[string]any { return pending })
	}
	return c.db.Set(ctx, path, fields)
}

func (c *Client) Update(ctx context.Context, path string, fields Fields) error {
	collection, id, err := docPath(path)
	if err != nil {
		return err
	}
	if upd, err := prepareUpdate(fields, nil); err == nil {
		c.pushPending(collection, id, func(prev *Document) map[string]any {
			if prev == nil {
				return nil
			}
			return applyUpdate(prev.Fields, upd)
		})
	}
	return c.db.Update(ctx, path, fields)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.db.Delete(ctx, path)
}

// Subscribe opens a feed that also receives this Client's pending writes.
func (c *Client) Subscribe(ctx context.Context, path string, orders ...Order) (*Subscription, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return c.db.subscribe(ctx, path, orders, func(s *Subscription) {
		c.mu.Lock()
		c.subs[s.id] = s
		c.mu.Unlock()
		s.addCloseHook(func() {
			c.mu.Lock()
			delete(c.subs, s.id)
			c.mu.Unlock()
		})
	})
}

// pushPending builds the pending version of a document and hands it to
// every matching subscription of this Client. build returning nil skips
// the push.
func (c *Client) pushPending(collection, id string, build func(prev *Document) map[string]any) {
	c.mu.Lock()
	targets := make([]*Subscription, 0, len(c.subs))
	path := joinPath(collection, id)
	for _, s := range c.subs {
		if s.matches(collection, path) {
			targets = append(targets, s)
		}
	}
	c.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	prev, err := c.db.load(collection, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return
	}
	fields := build(prev)
	if fields == nil {
		return
	}
	kind := ChangeAdded
	doc := &Document{ID: id, Path: path, Fields: fields}
	if prev != nil {
		kind = ChangeModified
		doc.CreateTime = prev.CreateTime
		doc.UpdateTime = prev.UpdateTime
	}
	for _, s := range targets {
		s.push(Snapshot{Path: s.path, PendingLocalWrite: true, Changes: []Change{{Kind: kind, Doc: doc}}})
		snapshotsPublished.Inc()
	}
}

// Close ends every subscription opened through this Client.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	all := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		all = append(all, s)
	}
	c.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
