package kchat

import (
	"testing"
	"time"
)

func msgAt(id string, ts time.Time) Message {
	return Message{ID: id, Body: "m-" + id, CreatedAt: ts}
}

func TestLoadSetsWatermark(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := NewView()
	v.Load([]Message{
		msgAt("01A", base),
		msgAt("01B", base.Add(time.Second)),
		msgAt("01C", base.Add(2*time.Second)),
	})

	if v.Len() != 3 {
		t.Fatalf("expected 3 messages, got %d", v.Len())
	}
	if v.LastSeenID() != "01C" {
		t.Fatalf("expected watermark 01C, got %q", v.LastSeenID())
	}
}

func TestPushDeduplicatesByID(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := NewView()
	v.Load([]Message{msgAt("01A", base), msgAt("01B", base.Add(time.Second))})

	// A push carrying an already-rendered id changes nothing
	if v.ApplyPush(msgAt("01B", base.Add(time.Second))) {
		t.Fatal("duplicate push should not change the view")
	}
	if v.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", v.Len())
	}

	if !v.ApplyPush(msgAt("01C", base.Add(2*time.Second))) {
		t.Fatal("new push should change the view")
	}
	if v.LastSeenID() != "01C" {
		t.Fatalf("expected watermark 01C, got %q", v.LastSeenID())
	}
}

func TestPushBehindWatermarkKeepsWatermark(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := NewView()
	v.Load([]Message{msgAt("01C", base.Add(2 * time.Second))})

	// A straggler older than the watermark still renders, in order
	if !v.ApplyPush(msgAt("01A", base)) {
		t.Fatal("straggler push should be added")
	}
	if v.LastSeenID() != "01C" {
		t.Fatalf("watermark should stay at 01C, got %q", v.LastSeenID())
	}
	msgs := v.Messages()
	if msgs[0].ID != "01A" || msgs[1].ID != "01C" {
		t.Fatalf("expected order [01A 01C], got [%s %s]", msgs[0].ID, msgs[1].ID)
	}
}

func TestPollAddsOnlyBeyondWatermark(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := NewView()
	v.Load([]Message{msgAt("01A", base), msgAt("01B", base.Add(time.Second))})

	added := v.ApplyPoll([]Message{
		msgAt("01A", base),
		msgAt("01B", base.Add(time.Second)),
		msgAt("01C", base.Add(2*time.Second)),
		msgAt("01D", base.Add(3*time.Second)),
	})

	if added != 2 {
		t.Fatalf("expected 2 added, got %d", added)
	}
	if v.LastSeenID() != "01D" {
		t.Fatalf("expected watermark 01D, got %q", v.LastSeenID())
	}

	// A second identical poll is a no-op
	if again := v.ApplyPoll([]Message{msgAt("01C", base.Add(2 * time.Second)), msgAt("01D", base.Add(3 * time.Second))}); again != 0 {
		t.Fatalf("expected idempotent poll, got %d added", again)
	}
}

func TestPushThenPollNoDuplicate(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := NewView()
	v.Load([]Message{msgAt("01A", base)})

	v.ApplyPush(msgAt("01B", base.Add(time.Second)))

	// The poll races the push and carries the same row
	added := v.ApplyPoll([]Message{msgAt("01A", base), msgAt("01B", base.Add(time.Second))})
	if added != 0 {
		t.Fatalf("expected 0 added, got %d", added)
	}
	if v.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", v.Len())
	}
}

func TestOptimisticAppendAndFailure(t *testing.T) {
	v := NewView()
	v.Load(nil)

	localID := v.AppendLocal(Message{Body: "hello", Author: "u1"})
	msgs := v.Messages()
	if len(msgs) != 1 || !msgs[0].Pending {
		t.Fatalf("expected one pending message, got %+v", msgs)
	}

	v.MarkFailed(localID)
	msgs = v.Messages()
	if msgs[0].Pending || !msgs[0].Failed {
		t.Fatalf("expected failed message in place, got %+v", msgs[0])
	}
	if v.Len() != 1 {
		t.Fatal("failed entry must never be removed")
	}
}

func TestOptimisticEntrySurvivesUntilReload(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := NewView()
	v.Load(nil)

	v.AppendLocal(Message{Body: "hello", Author: "u1"})

	// The authoritative row arrives over push: a transient duplicate-looking
	// pair is accepted, de-dup is by id only
	v.ApplyPush(msgAt("01A", base))
	if v.Len() != 2 {
		t.Fatalf("expected provisional + authoritative entries, got %d", v.Len())
	}

	// The next full load supplies only authoritative rows
	v.Load([]Message{msgAt("01A", base)})
	if v.Len() != 1 {
		t.Fatalf("expected 1 message after reload, got %d", v.Len())
	}
}

func TestOrderingByCreatedAtThenID(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := NewView()
	v.Load(nil)

	// Same timestamp: id breaks the tie
	v.ApplyPush(msgAt("01B", ts))
	v.ApplyPush(msgAt("01A", ts))
	v.ApplyPush(msgAt("01C", ts.Add(-time.Second)))

	msgs := v.Messages()
	want := []string{"01C", "01A", "01B"}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, msgs[i].ID)
		}
	}
}
