package api

import (
	"context"
	"sync"
	"time"

	"chatsync/pkg/blobstore"
	"chatsync/pkg/chat"
	"chatsync/pkg/docstore"
	"chatsync/pkg/logger"
)

// sessionPool keeps one chat.Session per (user, conversation) so repeated
// requests reuse its live feeds and reconciled state. Idle sessions are
// closed by a background sweep.
type sessionPool struct {
	db    *docstore.DB
	blobs blobstore.Store
	opts  chat.SessionOptions
	idle  time.Duration

	mu      sync.Mutex
	entries map[string]*pooledSession
	stop    chan struct{}
	once    sync.Once
}

type pooledSession struct {
	session  *chat.Session
	client   *docstore.Client
	lastUsed time.Time
	refs     int
}

func newSessionPool(db *docstore.DB, blobs blobstore.Store, opts chat.SessionOptions, idle time.Duration) *sessionPool {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	p := &sessionPool{
		db:      db,
		blobs:   blobs,
		opts:    opts,
		idle:    idle,
		entries: make(map[string]*pooledSession),
		stop:    make(chan struct{}),
	}
	go p.sweepLoop()
	return p
}

func poolKey(userID, chatID string) string { return userID + "/" + chatID }

func (p *sessionPool) newSession(id chat.Identity) *pooledSession {
	client := docstore.NewClient(p.db)
	return &pooledSession{session: chat.NewSession(id, client, p.blobs, p.opts), client: client}
}

func (e *pooledSession) close() {
	e.session.Close()
	e.client.Close()
}

// open loads or creates the conversation with others and returns the
// pooled session bound to it.
func (p *sessionPool) open(ctx context.Context, id chat.Identity, others []string) (*chat.Session, error) {
	fresh := p.newSession(id)
	c, err := fresh.session.Open(ctx, others...)
	if err != nil {
		fresh.close()
		return nil, err
	}
	return p.adopt(poolKey(id.UserID, c.ID), fresh), nil
}

// attach returns the pooled session for chatID, binding a new one when
// none is pooled yet.
func (p *sessionPool) attach(ctx context.Context, id chat.Identity, chatID string) (*chat.Session, error) {
	key := poolKey(id.UserID, chatID)
	p.mu.Lock()
	if e, ok := p.entries[key]; ok {
		e.lastUsed = time.Now()
		p.mu.Unlock()
		return e.session, nil
	}
	p.mu.Unlock()

	fresh := p.newSession(id)
	if _, err := fresh.session.Attach(ctx, chatID); err != nil {
		fresh.close()
		return nil, err
	}
	return p.adopt(key, fresh), nil
}

// adopt pools fresh under key unless another request got there first.
func (p *sessionPool) adopt(key string, fresh *pooledSession) *chat.Session {
	p.mu.Lock()
	if e, ok := p.entries[key]; ok {
		e.lastUsed = time.Now()
		p.mu.Unlock()
		fresh.close()
		return e.session
	}
	fresh.lastUsed = time.Now()
	p.entries[key] = fresh
	p.mu.Unlock()
	apiSessions.Inc()
	return fresh.session
}

// hold keeps a pooled session from being swept, for long-lived streams.
// The returned func releases it.
func (p *sessionPool) hold(userID, chatID string) func() {
	key := poolKey(userID, chatID)
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok {
		return func() {}
	}
	e.refs++
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			e.refs--
			e.lastUsed = time.Now()
			p.mu.Unlock()
		})
	}
}

func (p *sessionPool) sweep(cutoff time.Time) int {
	p.mu.Lock()
	var victims []*pooledSession
	for k, e := range p.entries {
		if e.refs == 0 && e.lastUsed.Before(cutoff) {
			victims = append(victims, e)
			delete(p.entries, k)
		}
	}
	p.mu.Unlock()
	for _, e := range victims {
		e.close()
		apiSessions.Dec()
	}
	if len(victims) > 0 {
		logger.Debug("sessions_swept", "count", len(victims))
	}
	return len(victims)
}

func (p *sessionPool) sweepLoop() {
	period := p.idle / 4
	if period < time.Second {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweep(time.Now().Add(-p.idle))
		case <-p.stop:
			return
		}
	}
}

func (p *sessionPool) close() {
	p.once.Do(func() {
		close(p.stop)
		p.mu.Lock()
		all := make([]*pooledSession, 0, len(p.entries))
		for k, e := range p.entries {
			all = append(all, e)
			delete(p.entries, k)
		}
		p.mu.Unlock()
		for _, e := range all {
			e.close()
			e.session.Wait()
			apiSessions.Dec()
		}
	})
}
