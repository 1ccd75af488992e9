// Package docstore is a real-time document store on top of pebble.
//
// Documents live at slash separated paths ("chats/c1",
// "chats/c1/messages/m1"); the parent of a document is its collection.
// Writers commit through DB, which fans every committed change out to live
// subscriptions. Client wraps DB for one session and adds latency
// compensation: a session's own writes reach its subscriptions first as
// snapshots flagged PendingLocalWrite, then again once committed.
package docstore

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("docstore: document not found")
	ErrInvalidPath     = errors.New("docstore: invalid path")
	ErrInvalidArgument = errors.New("docstore: invalid argument")
	ErrClosed          = errors.New("docstore: closed")
)

// Fields is a document body. Values are strings, float64, bool, nil,
// time.Time, []any and map[string]any once read back from the store.
type Fields = map[string]any

// Document is a stored document. Fields must be treated as read-only: the
// same value may be delivered to several subscribers.
type Document struct {
	ID         string
	Path       string
	Fields     Fields
	CreateTime time.Time
	UpdateTime time.Time
}

// Get returns the value at a dotted field path.
func (d *Document) Get(field string) (any, bool) {
	if d == nil {
		return nil, false
	}
	return getPath(d.Fields, field)
}

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

type Change struct {
	Kind ChangeKind
	Doc  *Document
}

// Snapshot is one delivery on a subscription.
type Snapshot struct {
	Path              string
	PendingLocalWrite bool
	Changes           []Change
}

type Direction int

const (
	Asc Direction = iota
	Desc
)

// Order sorts collection reads and the initial snapshot of a collection
// subscription. Ties break on document id.
type Order struct {
	Field     string
	Direction Direction
}

func OrderBy(field string, dir Direction) Order {
	return Order{Field: field, Direction: dir}
}

type serverTimestamp struct{}

// ServerTimestamp is a field value the store replaces with its own clock
// at commit time. Latency-compensated pending snapshots carry nil instead.
func ServerTimestamp() any { return serverTimestamp{} }
