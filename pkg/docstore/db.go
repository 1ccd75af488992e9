package docstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"chatsync/pkg/logger"
)

// key formats
//
//	doc:<collection>:<id>                 document record
//	uniq:<collection>:<field>:<digest>    unique value reservation -> id
//
// Collection paths never contain ':' so a "doc:<collection>:" prefix scan
// only sees direct children, not documents of nested collections.
const (
	docKeyFmt    = "doc:%s:%s"
	docPrefixFmt = "doc:%s:"
	uniqKeyFmt   = "uniq:%s:%s:%s"
)

// DB is the committed store. All writes pass through commitMu so that
// fan-out order matches commit order and a new subscription's initial
// snapshot never misses or repeats a write.
type DB struct {
	pdb    *pebble.DB
	path   string
	sync   bool
	now    func() time.Time
	locks  *keyLocks
	hub    *hub
	closed atomic.Bool

	commitMu sync.Mutex
}

type Option func(*DB)

// WithClock replaces the server clock used for ServerTimestamp.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// WithSync toggles fsync on every commit. On by default.
func WithSync(on bool) Option {
	return func(db *DB) { db.sync = on }
}

// Open opens or creates a store in dir.
func Open(dir string, opts ...Option) (*DB, error) {
	pdb, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", dir, "error", err)
		return nil, fmt.Errorf("open pebble at %s: %w", dir, err)
	}
	db := &DB{
		pdb:   pdb,
		path:  dir,
		sync:  true,
		now:   func() time.Time { return time.Now().UTC() },
		locks: newKeyLocks(),
		hub:   newHub(),
	}
	for _, o := range opts {
		o(db)
	}
	logger.Info("docstore_opened", "path", dir)
	return db, nil
}

// Close ends every subscription, flushes and closes pebble.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	db.hub.closeAll()
	db.commitMu.Lock()
	defer db.commitMu.Unlock()
	if err := db.pdb.Flush(); err != nil {
		logger.Error("docstore_flush_failed", "error", err)
	}
	return db.pdb.Close()
}

func (db *DB) Ready() bool { return !db.closed.Load() }

func (db *DB) writeOpt() *pebble.WriteOptions {
	if db.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (db *DB) check() error {
	if db.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (db *DB) load(collection, id string) (*Document, error) {
	v, closer, err := db.pdb.Get([]byte(fmt.Sprintf(docKeyFmt, collection, id)))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	r, err := decodeRecord(v)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return &Document{ID: id, Path: joinPath(collection, id), Fields: r.Fields, CreateTime: r.CreateTime, UpdateTime: r.UpdateTime}, nil
}

func (db *DB) scan(collection string) ([]*Document, error) {
	prefix := []byte(fmt.Sprintf(docPrefixFmt, collection))
	it, err := db.pdb.NewIter(&pebble.IterOptions{LowerBound: prefix})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []*Document
	for it.SeekGE(prefix); it.Valid(); it.Next() {
		k := it.Key()
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		id := string(k[len(prefix):])
		r, err := decodeRecord(it.Value())
		if err != nil {
			logger.Warn("docstore_skip_corrupt", "collection", collection, "id", id, "error", err)
			continue
		}
		out = append(out, &Document{ID: id, Path: joinPath(collection, id), Fields: r.Fields, CreateTime: r.CreateTime, UpdateTime: r.UpdateTime})
	}
	return out, it.Error()
}

// Get reads one document.
func (db *DB) Get(ctx context.Context, path string) (doc *Document, err error) {
	defer observe("get", time.Now(), &err)
	if err := db.check(); err != nil {
		return nil, err
	}
	collection, id, err := docPath(path)
	if err != nil {
		return nil, err
	}
	return db.load(collection, id)
}

// List returns every document of a collection in the given order.
func (db *DB) List(ctx context.Context, collection string, orders ...Order) (docs []*Document, err error) {
	defer observe("list", time.Now(), &err)
	if err := db.check(); err != nil {
		return nil, err
	}
	c, err := collectionPath(collection)
	if err != nil {
		return nil, err
	}
	docs, err = db.scan(c)
	if err != nil {
		return nil, err
	}
	sortDocuments(docs, orders)
	return docs, nil
}

// QueryEquals returns the documents of collection whose field equals value
// exactly. Arrays match element by element in order.
func (db *DB) QueryEquals(ctx context.Context, collection, field string, value any) (docs []*Document, err error) {
	defer observe("query", time.Now(), &err)
	if err := db.check(); err != nil {
		return nil, err
	}
	c, err := collectionPath(collection)
	if err != nil {
		return nil, err
	}
	if field == "" {
		return nil, fmt.Errorf("%w: empty field", ErrInvalidArgument)
	}
	want, err := normalize(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	all, err := db.scan(c)
	if err != nil {
		return nil, err
	}
	for _, d := range all {
		if got, ok := d.Get(field); ok && valuesEqual(got, want) {
			docs = append(docs, d)
		}
	}
	sortDocuments(docs, nil)
	return docs, nil
}

// NewID returns a fresh document id.
func NewID() string {
	return uuid.NewString()
}

// Add creates a document with a generated id.
func (db *DB) Add(ctx context.Context, collection string, fields Fields) (string, error) {
	id := NewID()
	c, err := collectionPath(collection)
	if err != nil {
		return "", err
	}
	if err := db.Set(ctx, joinPath(c, id), fields); err != nil {
		return "", err
	}
	return id, nil
}

// Set writes a whole document, creating or replacing it.
func (db *DB) Set(ctx context.Context, path string, fields Fields) (err error) {
	defer observe("set", time.Now(), &err)
	if err := db.check(); err != nil {
		return err
	}
	collection, id, err := docPath(path)
	if err != nil {
		return err
	}
	unlock := db.locks.lock(path)
	defer unlock()

	return db.commit(collection, id, func(prev *Document, now time.Time) (map[string]any, error) {
		return prepareFields(fields, &now)
	}, nil)
}

// Update merges fields into an existing document. Keys may be dotted paths
// into nested maps. Missing documents yield ErrNotFound.
func (db *DB) Update(ctx context.Context, path string, fields Fields) (err error) {
	defer observe("update", time.Now(), &err)
	if err := db.check(); err != nil {
		return err
	}
	collection, id, err := docPath(path)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty update", ErrInvalidArgument)
	}
	unlock := db.locks.lock(path)
	defer unlock()

	return db.commit(collection, id, func(prev *Document, now time.Time) (map[string]any, error) {
		if prev == nil {
			return nil, fmt.Errorf("update %s: %w", path, ErrNotFound)
		}
		upd, err := prepareUpdate(fields, &now)
		if err != nil {
			return nil, err
		}
		return applyUpdate(prev.Fields, upd), nil
	}, nil)
}

// prepareUpdate resolves each update value on its own so dotted keys are
// kept flat.
func prepareUpdate(fields Fields, ts *time.Time) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "" {
			return nil, fmt.Errorf("%w: empty field", ErrInvalidArgument)
		}
		n, err := normalize(resolve(v, ts))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, k, err)
		}
		out[k] = n
	}
	return out, nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (db *DB) Delete(ctx context.Context, path string) (err error) {
	defer observe("delete", time.Now(), &err)
	if err := db.check(); err != nil {
		return err
	}
	collection, id, err := docPath(path)
	if err != nil {
		return err
	}
	unlock := db.locks.lock(path)
	defer unlock()

	db.commitMu.Lock()
	defer db.commitMu.Unlock()
	prev, err := db.load(collection, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := db.pdb.Delete([]byte(fmt.Sprintf(docKeyFmt, collection, id)), db.writeOpt()); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	db.hub.publish(collection, Change{Kind: ChangeRemoved, Doc: prev}, false)
	return nil
}

// AddUnique creates a document unless one already holds value in field.
// The reservation is kept under its own key so concurrent callers racing
// on the same value converge on a single document.
func (db *DB) AddUnique(ctx context.Context, collection, field string, value any, fields Fields) (id string, created bool, err error) {
	defer observe("add_unique", time.Now(), &err)
	if err := db.check(); err != nil {
		return "", false, err
	}
	c, err := collectionPath(collection)
	if err != nil {
		return "", false, err
	}
	norm, err := normalize(value)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	raw, err := json.Marshal(toWire(norm))
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	sum := sha256.Sum256(raw)
	uniqKey := fmt.Sprintf(uniqKeyFmt, c, field, hex.EncodeToString(sum[:]))

	unlock := db.locks.lock(uniqKey)
	defer unlock()

	if v, closer, err := db.pdb.Get([]byte(uniqKey)); err == nil {
		existing := string(v)
		closer.Close()
		if _, err := db.load(c, existing); err == nil {
			return existing, false, nil
		}
		// reservation outlived its document; fall through and recreate
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return "", false, err
	}

	// documents written before the reservation existed
	matches, err := db.QueryEquals(ctx, c, field, norm)
	if err != nil {
		return "", false, err
	}
	if len(matches) > 0 {
		id := matches[0].ID
		if err := db.pdb.Set([]byte(uniqKey), []byte(id), db.writeOpt()); err != nil {
			return "", false, err
		}
		return id, false, nil
	}

	id = NewID()
	path := joinPath(c, id)
	unlockDoc := db.locks.lock(path)
	defer unlockDoc()
	err = db.commit(c, id, func(prev *Document, now time.Time) (map[string]any, error) {
		f, err := prepareFields(fields, &now)
		if err != nil {
			return nil, err
		}
		setPath(f, field, norm)
		return f, nil
	}, func(b *pebble.Batch) error {
		return b.Set([]byte(uniqKey), []byte(id), nil)
	})
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// commit loads the previous version, builds the next one and writes it
// together with any extra batch operations, then fans the change out.
func (db *DB) commit(collection, id string, build func(prev *Document, now time.Time) (map[string]any, error), extra func(*pebble.Batch) error) error {
	db.commitMu.Lock()
	defer db.commitMu.Unlock()
	if err := db.check(); err != nil {
		return err
	}

	prev, err := db.load(collection, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	now := db.now()
	fields, err := build(prev, now)
	if err != nil {
		return err
	}

	r := record{Fields: fields, CreateTime: now, UpdateTime: now}
	kind := ChangeAdded
	if prev != nil {
		r.CreateTime = prev.CreateTime
		kind = ChangeModified
	}
	val, err := encodeRecord(r)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	b := db.pdb.NewBatch()
	defer b.Close()
	if err := b.Set([]byte(fmt.Sprintf(docKeyFmt, collection, id)), val, nil); err != nil {
		return err
	}
	if extra != nil {
		if err := extra(b); err != nil {
			return err
		}
	}
	if err := b.Commit(db.writeOpt()); err != nil {
		logger.Error("docstore_commit_failed", "collection", collection, "id", id, "error", err)
		return err
	}

	doc := &Document{ID: id, Path: joinPath(collection, id), Fields: fields, CreateTime: r.CreateTime, UpdateTime: r.UpdateTime}
	db.hub.publish(collection, Change{Kind: kind, Doc: doc}, false)
	logger.Debug("docstore_committed", "path", doc.Path, "kind", kind)
	return nil
}

// Subscribe opens a live feed on a document or collection path. The first
// snapshot carries the current state: every document of a collection as
// "added" in the given order, or the single document when it exists.
func (db *DB) Subscribe(ctx context.Context, path string, orders ...Order) (*Subscription, error) {
	return db.subscribe(ctx, path, orders, nil)
}

func (db *DB) subscribe(ctx context.Context, path string, orders []Order, register func(*Subscription)) (*Subscription, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	collection := isCollection(path)
	var initial []*Document
	var err error

	db.commitMu.Lock()
	defer db.commitMu.Unlock()
	if collection {
		path, err = collectionPath(path)
		if err != nil {
			return nil, err
		}
		initial, err = db.scan(path)
		if err != nil {
			return nil, err
		}
		sortDocuments(initial, orders)
	} else {
		c, id, err := docPath(path)
		if err != nil {
			return nil, err
		}
		path = joinPath(c, id)
		d, err := db.load(c, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if d != nil {
			initial = append(initial, d)
		}
	}

	s := newSubscription(path, collection, orders)
	changes := make([]Change, 0, len(initial))
	for _, d := range initial {
		changes = append(changes, Change{Kind: ChangeAdded, Doc: d})
	}
	s.push(Snapshot{Path: path, Changes: changes})
	db.hub.add(s)
	if register != nil {
		register(s)
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.Close()
			case <-s.done:
			}
		}()
	}
	return s, nil
}
