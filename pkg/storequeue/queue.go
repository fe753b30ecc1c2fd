// Package storequeue is the durable write-intent boundary the batch fires
// idempotent object add/delete calls into (spec.md §6 "Persisted state
// layout"). It never blocks the batch: every call enqueues an intent that a
// background goroutine flushes to pebble, deduplicating an add that is
// later deleted within the same flush window, adapted from the teacher's
// pkg/storage.PebbleStore key-prefix and Set/Get idiom.
package storequeue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/invisible-exchange/rollup-core/pkg/notes"
)

// opKind distinguishes an add from a delete intent for the same key.
type opKind int

const (
	opAdd opKind = iota
	opDelete
)

type intent struct {
	kind  opKind
	key   []byte
	value []byte // nil for deletes
}

// Queue is the background write-intent queue. Construct with Open, call
// Flush (directly, or let the periodic goroutine from Run do it) to
// persist pending intents, and Close when done.
type Queue struct {
	db  *pebble.DB
	log *zap.SugaredLogger

	mu      sync.Mutex
	pending map[string]intent

	stop chan struct{}
	done chan struct{}
}

// Open opens (or creates) the pebble database at path.
func Open(path string, log *zap.SugaredLogger) (*Queue, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("storequeue: open %s: %w", path, err)
	}
	return &Queue{
		db:      db,
		log:     log,
		pending: make(map[string]intent),
	}, nil
}

// Close stops the background flusher (if running) and closes the database.
func (q *Queue) Close() error {
	if q.stop != nil {
		close(q.stop)
		<-q.done
	}
	q.Flush()
	return q.db.Close()
}

// Run starts a background goroutine that flushes pending intents every
// interval, until Close is called. Background I/O never touches tree state
// (spec.md §5).
func (q *Queue) Run(interval time.Duration) {
	q.stop = make(chan struct{})
	q.done = make(chan struct{})
	go func() {
		defer close(q.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				q.Flush()
			case <-q.stop:
				return
			}
		}
	}()
}

func noteKey(index uint64, addressX string) []byte {
	return []byte(fmt.Sprintf("note:%s:%d", addressX, index))
}

func positionKey(addressX string, index uint64) []byte {
	return []byte(fmt.Sprintf("position:%s:%d", addressX, index))
}

func tabKey(addressX string, index uint64) []byte {
	return []byte(fmt.Sprintf("tab:%s:%d", addressX, index))
}

func (q *Queue) enqueue(kind opKind, key, value []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[string(key)] = intent{kind: kind, key: key, value: value}
}

// AddNote enqueues an idempotent upsert of n, keyed by (address, index).
func (q *Queue) AddNote(n notes.Note) {
	val, err := json.Marshal(n)
	if err != nil {
		if q.log != nil {
			q.log.Errorw("storequeue: marshal note failed", "err", err)
		}
		return
	}
	q.enqueue(opAdd, noteKey(n.Index, n.Address.AddressElement().String()), val)
}

// DeleteNote enqueues an idempotent tombstone for the note at (index,
// addressX). Calling this in the same flush window as a matching AddNote
// dedups to a no-op (spec.md §6 "deduplicates adds that are later deleted
// in the same flush").
func (q *Queue) DeleteNote(index uint64, addressX string) {
	q.enqueue(opDelete, noteKey(index, addressX), nil)
}

// AddPosition enqueues an idempotent upsert of a perpetual position.
func (q *Queue) AddPosition(p notes.PerpPosition) {
	val, err := json.Marshal(p)
	if err != nil {
		if q.log != nil {
			q.log.Errorw("storequeue: marshal position failed", "err", err)
		}
		return
	}
	q.enqueue(opAdd, positionKey(p.PositionHeader.PositionAddress.AddressElement().String(), p.Index), val)
}

// DeletePosition enqueues an idempotent tombstone for a position.
func (q *Queue) DeletePosition(addressX string, index uint64) {
	q.enqueue(opDelete, positionKey(addressX, index), nil)
}

// AddOrderTab enqueues an idempotent upsert of a market-maker tab.
func (q *Queue) AddOrderTab(t notes.OrderTab) {
	val, err := json.Marshal(t)
	if err != nil {
		if q.log != nil {
			q.log.Errorw("storequeue: marshal order tab failed", "err", err)
		}
		return
	}
	q.enqueue(opAdd, tabKey(t.TabHeader.PubKey.AddressElement().String(), t.TabIdx), val)
}

// DeleteOrderTab enqueues an idempotent tombstone for a tab.
func (q *Queue) DeleteOrderTab(addressX string, index uint64) {
	q.enqueue(opDelete, tabKey(addressX, index), nil)
}

// Flush persists every pending intent to pebble and clears the queue.
// Durable-store write failures are retried in the background and logged,
// never propagated to the caller (spec.md §4.3, §7).
func (q *Queue) Flush() {
	q.mu.Lock()
	batch := make([]intent, 0, len(q.pending))
	for _, it := range q.pending {
		batch = append(batch, it)
	}
	q.pending = make(map[string]intent)
	q.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	wb := q.db.NewBatch()
	defer wb.Close()
	for _, it := range batch {
		var err error
		switch it.kind {
		case opAdd:
			err = wb.Set(it.key, it.value, nil)
		case opDelete:
			err = wb.Delete(it.key, nil)
		}
		if err != nil && q.log != nil {
			q.log.Errorw("storequeue: stage write failed", "key", string(it.key), "err", err)
		}
	}
	if err := wb.Commit(pebble.Sync); err != nil {
		if q.log != nil {
			q.log.Errorw("storequeue: flush commit failed", "err", err)
		}
		// put the intents back for the next Flush, unless a newer intent
		// for the same key was enqueued meanwhile.
		q.mu.Lock()
		for _, it := range batch {
			if _, newer := q.pending[string(it.key)]; !newer {
				q.pending[string(it.key)] = it
			}
		}
		q.mu.Unlock()
	}
}
