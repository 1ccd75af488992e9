package docstore

import (
	"sync"
	"sync/atomic"
)

var subSeq uint64

// Subscription delivers snapshots for one document or collection path in
// commit order. Deliveries are buffered without bound so a slow reader
// never blocks writers; Close releases the buffer.
type Subscription struct {
	id         uint64
	path       string
	collection bool
	orders     []Order

	mu     sync.Mutex
	queue  []Snapshot
	closed bool

	notify chan struct{}
	done   chan struct{}
	out    chan Snapshot
	once   sync.Once

	onClose []func()
}

func newSubscription(path string, collection bool, orders []Order) *Subscription {
	s := &Subscription{
		id:         atomic.AddUint64(&subSeq, 1),
		path:       path,
		collection: collection,
		orders:     orders,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		out:        make(chan Snapshot),
	}
	go s.pump()
	return s
}

// C is closed after Close once pending deliveries are dropped.
func (s *Subscription) C() <-chan Snapshot { return s.out }

func (s *Subscription) Path() string { return s.path }

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		hooks := s.onClose
		s.mu.Unlock()
		close(s.done)
		for _, fn := range hooks {
			fn()
		}
	})
}

func (s *Subscription) addCloseHook(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

func (s *Subscription) push(snap Snapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, snap)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			next := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- next:
			case <-s.done:
				return
			}
		}
	}
}

// matches reports whether a change to the document at docPath concerns s.
func (s *Subscription) matches(collection, docPath string) bool {
	if s.collection {
		return s.path == collection
	}
	return s.path == docPath
}

// hub tracks live subscriptions by path.
type hub struct {
	mu   sync.RWMutex
	subs map[uint64]*Subscription
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]*Subscription)}
}

func (h *hub) add(s *Subscription) {
	h.mu.Lock()
	h.subs[s.id] = s
	h.mu.Unlock()
	subscriptionsGauge.Inc()
	s.addCloseHook(func() {
		h.mu.Lock()
		delete(h.subs, s.id)
		h.mu.Unlock()
		subscriptionsGauge.Dec()
	})
}

func (h *hub) publish(collection string, change Change, pending bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !s.matches(collection, change.Doc.Path) {
			continue
		}
		s.push(Snapshot{Path: s.path, PendingLocalWrite: pending, Changes: []Change{change}})
		snapshotsPublished.Inc()
	}
}

func (h *hub) closeAll() {
	h.mu.RLock()
	all := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		all = append(all, s)
	}
	h.mu.RUnlock()
	for _, s := range all {
		s.Close()
	}
}
