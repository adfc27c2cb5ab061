package reachability

import (
	"sync"
	"testing"
)

type recordingSubscriber struct {
	mu    sync.Mutex
	kinds []Kind
}

func (r *recordingSubscriber) OnNetworkChanged(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *recordingSubscriber) received() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Kind(nil), r.kinds...)
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(nil)

	a := &recordingSubscriber{}
	c := &recordingSubscriber{}
	b.Register("ws://a/", a)
	b.Register("ws://c/", c)

	if n := b.Broadcast(NoNetwork); n != 2 {
		t.Errorf("Broadcast notified %d subscribers, want 2", n)
	}
	b.Broadcast(Wifi)

	for name, sub := range map[string]*recordingSubscriber{"a": a, "c": c} {
		got := sub.received()
		if len(got) != 2 || got[0] != NoNetwork || got[1] != Wifi {
			t.Errorf("subscriber %s received %v, want [none wifi]", name, got)
		}
	}
}

func TestBroadcaster_Release(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := &recordingSubscriber{}

	release := b.Register("ws://a/", sub)
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}

	release()
	release()

	if b.Len() != 0 {
		t.Errorf("Len() = %d after release, want 0", b.Len())
	}
	if n := b.Broadcast(Mobile); n != 0 {
		t.Errorf("Broadcast notified %d subscribers after release, want 0", n)
	}
	if len(sub.received()) != 0 {
		t.Error("released subscriber should not receive broadcasts")
	}
}

func TestBroadcaster_ReleaseDuringBroadcast(t *testing.T) {
	b := NewBroadcaster(nil)

	var release func()
	calls := 0
	release = b.Register("ws://self/", SubscriberFunc(func(Kind) {
		calls++
		release()
	}))

	b.Broadcast(Wifi)
	b.Broadcast(Wifi)

	if calls != 1 {
		t.Errorf("subscriber called %d times, want 1", calls)
	}
}

func TestBroadcaster_Available(t *testing.T) {
	b := NewBroadcaster(nil)

	if !b.Available() {
		t.Error("network should be assumed available before any broadcast")
	}
	if _, ok := b.Last(); ok {
		t.Error("Last() should report no observation yet")
	}

	b.Broadcast(NoNetwork)
	if b.Available() {
		t.Error("Available() should be false after NoNetwork")
	}

	b.Broadcast(Mobile)
	if !b.Available() {
		t.Error("Available() should be true after Mobile")
	}
	if last, _ := b.Last(); last != Mobile {
		t.Errorf("Last() = %v, want mobile", last)
	}
}

func TestBroadcaster_URLs(t *testing.T) {
	b := NewBroadcaster(nil)
	b.Register("ws://b/", &recordingSubscriber{})
	b.Register("ws://a/", &recordingSubscriber{})

	urls := b.URLs()
	if len(urls) != 2 || urls[0] != "ws://a/" || urls[1] != "ws://b/" {
		t.Errorf("URLs() = %v, want [ws://a/ ws://b/]", urls)
	}
}
