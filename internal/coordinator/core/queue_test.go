package core

import "testing"

func TestNewQueue(t *testing.T) {
	q := NewQueue[int]()
	if q == nil {
		t.Fatal("NewQueue returned nil")
	}
	if q.Len() != 0 {
		t.Errorf("expected new queue to have length 0, got %d", q.Len())
	}
}

func TestQueue_Pop(t *testing.T) {
	t.Run("pop from empty queue returns error", func(t *testing.T) {
		q := NewQueue[string]()
		item, err := q.Pop()
		if err != ErrQueueEmpty {
			t.Errorf("expected ErrQueueEmpty, got %v", err)
		}
		if item != "" {
			t.Errorf("expected zero value, got %q", item)
		}
	})

	t.Run("FIFO order", func(t *testing.T) {
		q := NewQueue[string]()
		q.Push("a")
		q.Push("b")
		q.Push("c")

		for _, want := range []string{"a", "b", "c"} {
			got, err := q.Pop()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != want {
				t.Errorf("expected %q, got %q", want, got)
			}
		}
		if q.Len() != 0 {
			t.Errorf("expected empty queue, got length %d", q.Len())
		}
	})

	t.Run("interleaved push and pop across compaction", func(t *testing.T) {
		q := NewQueue[int]()
		next := 0
		for i := range 500 {
			q.Push(i)
			if i%3 == 0 {
				got, err := q.Pop()
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != next {
					t.Fatalf("expected %d, got %d", next, got)
				}
				next++
			}
		}
		for q.Len() > 0 {
			got, _ := q.Pop()
			if got != next {
				t.Fatalf("expected %d, got %d", next, got)
			}
			next++
		}
		if next != 500 {
			t.Errorf("expected to drain 500 items, drained %d", next)
		}
	})
}

func TestQueue_Top(t *testing.T) {
	q := NewQueue[int]()
	if _, err := q.Top(); err != ErrQueueEmpty {
		t.Errorf("expected ErrQueueEmpty, got %v", err)
	}

	q.Push(7)
	q.Push(8)
	top, err := q.Top()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if top != 7 {
		t.Errorf("expected 7, got %d", top)
	}
	if q.Len() != 2 {
		t.Errorf("Top must not remove items, got length %d", q.Len())
	}
}

func TestQueue_Clear(t *testing.T) {
	q := NewQueue[int]()
	q.Push(1)
	q.Push(2)
	_, _ = q.Pop()
	q.Push(3)

	if n := q.Clear(); n != 2 {
		t.Errorf("expected 2 dropped items, got %d", n)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue after Clear, got length %d", q.Len())
	}
}
