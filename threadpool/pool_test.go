package threadpool

import (
	"errors"
	"testing"
)

func TestPoolPreservesTicketOrder(t *testing.T) {
	const n = 50
	p := New(4, n)
	defer p.Close()

	for i := 0; i < n; i++ {
		v := i
		if _, err := p.Submit(func(workerID int) (any, error) { return v, nil }); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		got, err := p.Dequeue()
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if got.(int) != i {
			t.Fatalf("dequeue %d: got %v, want %d", i, got, i)
		}
	}
}

func TestPoolLatchesFirstError(t *testing.T) {
	p := New(2, 4)
	defer p.Close()

	boom := errors.New("boom")
	for i := 0; i < 4; i++ {
		i := i
		p.Submit(func(workerID int) (any, error) {
			if i == 1 {
				return nil, boom
			}
			return i, nil
		})
	}
	var sawErr bool
	for i := 0; i < 4; i++ {
		_, err := p.Dequeue()
		if err != nil {
			sawErr = true
			break
		}
	}
	if !sawErr {
		t.Fatal("expected dequeue to surface latched error")
	}
	if p.Status() == nil {
		t.Fatal("expected Status() to report the latched error")
	}
}

func TestSerialPoolNeverReorders(t *testing.T) {
	p := NewSerial()
	defer p.Close()

	for i := 0; i < 5; i++ {
		v := i
		p.Submit(func(workerID int) (any, error) { return v, nil })
	}
	for i := 0; i < 5; i++ {
		got, err := p.Dequeue()
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if got.(int) != i {
			t.Fatalf("dequeue %d: got %v, want %d", i, got, i)
		}
	}
}
