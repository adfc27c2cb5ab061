package loop

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLoop_RunsTasksInOrder(t *testing.T) {
	l := New(nil)

	var got []int
	for i := 0; i < 500; i++ {
		i := i
		l.Execute(func() { got = append(got, i) })
	}

	l.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if len(got) != 500 {
		t.Fatalf("ran %d tasks, want 500", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran in position %d", v, i)
		}
	}
}

func TestLoop_SingleGoroutine(t *testing.T) {
	l := New(nil)
	defer l.Close()

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Execute(func() {
					mu.Lock()
					active++
					if active > maxActive {
						maxActive = active
					}
					mu.Unlock()

					time.Sleep(10 * time.Microsecond)

					mu.Lock()
					active--
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()

	done := make(chan struct{})
	l.Execute(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for loop to drain")
	}

	mu.Lock()
	defer mu.Unlock()
	if maxActive != 1 {
		t.Errorf("max concurrent tasks = %d, want 1", maxActive)
	}
}

func TestLoop_SurvivesPanic(t *testing.T) {
	l := New(nil)
	defer l.Close()

	l.Execute(func() { panic("boom") })

	done := make(chan struct{})
	l.Execute(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop stopped after a panicking task")
	}
}

func TestLoop_ExecuteAfterClose(t *testing.T) {
	l := New(nil)
	l.Close()
	l.Close()

	ran := false
	l.Execute(func() { ran = true })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if ran {
		t.Error("task submitted after Close should not run")
	}
}

func TestInline_RunsSynchronously(t *testing.T) {
	ran := false
	Inline{}.Execute(func() { ran = true })
	if !ran {
		t.Error("Inline.Execute should run the task before returning")
	}
}
