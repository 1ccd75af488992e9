package chat

import (
	"sort"
	"sync"
	"time"

	"chatsync/pkg/docstore"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
)

// Reconciler owns the local message list of one conversation. The live
// feed is authoritative: feed deliveries upsert by id while optimistic
// entries are only inserted when the id is not already present. The list
// is kept newest first.
type Reconciler struct {
	now func() time.Time

	mu   sync.Mutex
	msgs []models.Message
	idx  map[string]int
}

func NewReconciler(now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{now: now, idx: make(map[string]int)}
}

// AddOptimistic merges a message created by this session. It reports
// whether the message was inserted.
func (r *Reconciler) AddOptimistic(m models.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.merge([]models.Message{m}, false) > 0
}

// ApplySnapshot merges the added documents of a message feed snapshot and
// returns how many entries were inserted or replaced. Pending local echoes
// are skipped.
func (r *Reconciler) ApplySnapshot(snap docstore.Snapshot) int {
	if snap.PendingLocalWrite {
		return 0
	}
	batch := make([]models.Message, 0, len(snap.Changes))
	for _, ch := range snap.Changes {
		if ch.Kind != docstore.ChangeAdded || ch.Doc == nil {
			continue
		}
		m, err := models.MessageFromFields(ch.Doc.ID, ch.Doc.Fields, r.now)
		if err != nil {
			logger.Warn("message_decode_skipped", "id", ch.Doc.ID, "error", err)
			continue
		}
		batch = append(batch, m)
	}
	if len(batch) == 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.merge(batch, true)
}

// merge puts batch ahead of the existing entries, collapses ids and
// re-sorts by createdAt, newest first. Equal timestamps keep their merge
// order. Callers hold mu.
func (r *Reconciler) merge(batch []models.Message, upsert bool) int {
	changed := 0
	var fresh []models.Message
	for _, m := range batch {
		if i, ok := r.idx[m.ID]; ok {
			if upsert {
				r.msgs[i] = m
				changed++
			}
			continue
		}
		// also collapse duplicates within the batch, first one wins
		dup := false
		for _, f := range fresh {
			if f.ID == m.ID {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		fresh = append(fresh, m)
		changed++
	}
	if len(fresh) > 0 {
		r.msgs = append(fresh, r.msgs...)
	}
	sort.SliceStable(r.msgs, func(i, j int) bool {
		return r.msgs[i].CreatedAt.After(r.msgs[j].CreatedAt)
	})
	for i, m := range r.msgs {
		r.idx[m.ID] = i
	}
	return changed
}

// Messages returns a copy of the list, newest first.
func (r *Reconciler) Messages() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Message(nil), r.msgs...)
}

func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

// Reset drops every entry, used when the session switches conversation.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
	r.idx = make(map[string]int)
}
