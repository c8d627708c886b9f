package bus

import (
	"context"
	"testing"
	"time"
)

func TestFanOutBroadcastsToAllSubscribers(t *testing.T) {
	fo := NewFanOut[int](10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	input := make(chan int, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input, nil)

	input <- 42
	time.Sleep(50 * time.Millisecond)

	select {
	case v := <-out1:
		if v != 42 {
			t.Errorf("out1: expected 42, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("out1: timed out waiting for value")
	}

	select {
	case v := <-out2:
		if v != 42 {
			t.Errorf("out2: expected 42, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("out2: timed out waiting for value")
	}
}

func TestFanOutDropsOnFullSubscriberChannel(t *testing.T) {
	fo := NewFanOut[int](1)
	out := fo.Subscribe()

	var drops int
	fo.OnDrop = func(idx int) { drops++ }

	fo.Publish(1, nil)
	fo.Publish(2, nil) // out already has 1 buffered; this one should drop

	if drops != 1 {
		t.Fatalf("expected 1 drop, got %d", drops)
	}
	if v := <-out; v != 1 {
		t.Fatalf("expected first published value to survive, got %d", v)
	}
}
