package server

import (
	"context"
	"testing"
	"time"
)

func TestWebhookDispatcherStopsOnShutdown(t *testing.T) {
	d := &webhookDispatcher{cursors: make(map[int]int64)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher kept running after shutdown")
	}
}
