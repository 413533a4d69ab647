package kchat

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// View is the reconciliation state machine for one open group or
// conversation. It merges four message sources — the initial load, push
// events, poll ticks, and optimistic local sends — into a single list
// ordered by (created_at, id). De-duplication is by persisted id only,
// never by content: a provisional local entry may briefly coexist with
// its authoritative row until the next load replaces the state.
type View struct {
	mu         sync.Mutex
	messages   []Message
	present    map[string]struct{} // persisted ids currently in the view
	lastSeenID string
	localSeq   atomic.Uint64
}

// NewView creates an empty view.
func NewView() *View {
	return &View{present: make(map[string]struct{})}
}

// Load replaces the view's state with a full fetch in ascending order and
// advances the watermark to the highest id loaded. Provisional entries are
// discarded: the fetch is authoritative.
func (v *View) Load(ascending []Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.messages = make([]Message, len(ascending))
	copy(v.messages, ascending)
	v.present = make(map[string]struct{}, len(ascending))
	v.lastSeenID = ""
	for _, msg := range ascending {
		if msg.ID == "" {
			continue
		}
		v.present[msg.ID] = struct{}{}
		if msg.ID > v.lastSeenID {
			v.lastSeenID = msg.ID
		}
	}
}

// ApplyPush merges a push-delivered message. The message is inserted only if
// its id is not already present; the watermark advances only when the id
// exceeds it. Reports whether the view changed.
func (v *View) ApplyPush(msg Message) bool {
	if msg.ID == "" {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, dup := v.present[msg.ID]; dup {
		return false
	}
	v.insert(msg)
	if msg.ID > v.lastSeenID {
		v.lastSeenID = msg.ID
	}
	return true
}

// ApplyPoll merges a polled fetch: messages with id beyond the watermark and
// not already present are inserted, then the watermark advances to the
// maximum id seen in the fetch. Returns the number of messages added.
func (v *View) ApplyPoll(fetched []Message) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	added := 0
	maxSeen := v.lastSeenID
	for _, msg := range fetched {
		if msg.ID == "" {
			continue
		}
		if msg.ID > maxSeen {
			maxSeen = msg.ID
		}
		if msg.ID <= v.lastSeenID {
			continue
		}
		if _, dup := v.present[msg.ID]; dup {
			continue
		}
		v.insert(msg)
		added++
	}
	v.lastSeenID = maxSeen
	return added
}

// AppendLocal appends a provisional message with pending status and returns
// its local handle. The authoritative row arrives later through push or
// poll; nothing correlates the two by content.
func (v *View) AppendLocal(msg Message) string {
	localID := "local-" + strconv.FormatUint(v.localSeq.Add(1), 10)
	msg.ID = ""
	msg.LocalID = localID
	msg.Pending = true
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	v.mu.Lock()
	v.messages = append(v.messages, msg)
	v.mu.Unlock()
	return localID
}

// MarkFailed marks the provisional entry as errored in place. Failed entries
// are never silently removed.
func (v *View) MarkFailed(localID string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.messages {
		if v.messages[i].LocalID == localID {
			v.messages[i].Pending = false
			v.messages[i].Failed = true
			return
		}
	}
}

// Messages returns a copy of the current ordered view.
func (v *View) Messages() []Message {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// Len returns the number of entries currently rendered.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.messages)
}

// LastSeenID returns the current watermark.
func (v *View) LastSeenID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeenID
}

// insert places msg at its (created_at, id) position. Callers hold the lock.
func (v *View) insert(msg Message) {
	v.present[msg.ID] = struct{}{}

	// Messages almost always arrive in order; check the tail first.
	n := len(v.messages)
	if n == 0 || !before(msg, v.messages[n-1]) {
		v.messages = append(v.messages, msg)
		return
	}

	i := n - 1
	for i > 0 && before(msg, v.messages[i-1]) {
		i--
	}
	v.messages = append(v.messages, Message{})
	copy(v.messages[i+1:], v.messages[i:])
	v.messages[i] = msg
}

// before reports whether a orders strictly before b by (created_at, id).
func before(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
