package events

import (
	"fmt"
	"testing"
	"time"
)

func ev(n int) Event {
	return New(KindSaleProfit, 91, "Tester", map[string]string{"n": fmt.Sprint(n)})
}

func TestBuffer_PublishReceive(t *testing.T) {
	b := NewBuffer(10)

	first := ev(1)
	if !b.Publish(first) {
		t.Fatal("Publish returned false")
	}

	got, ok := b.Receive()
	if !ok {
		t.Fatal("Receive returned closed")
	}
	if got.ID != first.ID {
		t.Errorf("got event %v, want %v", got.ID, first.ID)
	}
}

func TestBuffer_GrowsUnderBurst(t *testing.T) {
	b := NewBuffer(4)

	for i := 0; i < 100; i++ {
		if !b.Publish(ev(i)) {
			t.Fatalf("Publish %d failed", i)
		}
	}
	if b.Len() != 100 {
		t.Fatalf("len = %d, want 100", b.Len())
	}

	// FIFO order must survive the grows.
	for i := 0; i < 100; i++ {
		got, ok := b.Receive()
		if !ok {
			t.Fatalf("Receive %d returned closed", i)
		}
		if got.Fields["n"] != fmt.Sprint(i) {
			t.Fatalf("event %d out of order: %v", i, got.Fields)
		}
	}
}

func TestBuffer_Drain(t *testing.T) {
	b := NewBuffer(8)
	for i := 0; i < 5; i++ {
		b.Publish(ev(i))
	}

	batch := b.Drain(3)
	if len(batch) != 3 {
		t.Fatalf("drained %d, want 3", len(batch))
	}
	if batch[0].Fields["n"] != "0" {
		t.Errorf("first drained = %v", batch[0].Fields)
	}

	rest := b.Drain(0)
	if len(rest) != 2 {
		t.Errorf("drained %d, want remaining 2", len(rest))
	}
	if b.Drain(0) != nil {
		t.Error("empty drain should return nil")
	}
}

func TestBuffer_CloseDrainsThenSignals(t *testing.T) {
	b := NewBuffer(4)
	b.Publish(ev(1))
	b.Close()

	if b.Publish(ev(2)) {
		t.Error("Publish after Close returned true")
	}

	if _, ok := b.Receive(); !ok {
		t.Fatal("buffered event lost on close")
	}
	if _, ok := b.Receive(); ok {
		t.Fatal("expected closed signal")
	}
}

func TestBuffer_ReceiveBlocksUntilPublish(t *testing.T) {
	b := NewBuffer(4)

	done := make(chan Event, 1)
	go func() {
		got, _ := b.Receive()
		done <- got
	}()

	time.Sleep(10 * time.Millisecond)
	sent := ev(7)
	b.Publish(sent)

	select {
	case got := <-done:
		if got.ID != sent.ID {
			t.Errorf("got %v, want %v", got.ID, sent.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive never woke up")
	}
}
