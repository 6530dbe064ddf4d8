package batch

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okarpov/imgpress/internal/model"
)

func TestParseMode(t *testing.T) {
	for _, raw := range []string{"sequential", "concurrent"} {
		if _, err := ParseMode(raw); err != nil {
			t.Errorf("ParseMode(%s) error = %v", raw, err)
		}
	}
	if _, err := ParseMode("parallel"); err == nil {
		t.Error("ParseMode(parallel) should return error")
	}
}

func TestSubmitEmptyQueueDoesNothing(t *testing.T) {
	c := &fakeCodec{}
	svc, _, _ := newTestService(ModeSequential, c)

	svc.Submit(context.Background())

	if c.calls() != 0 {
		t.Errorf("codec called %d times on empty queue, want 0", c.calls())
	}
}

func TestSubmitSuccess(t *testing.T) {
	ctx := context.Background()

	source := strings.Repeat("x", 2_000_000)
	c := &fakeCodec{
		result: func(src []byte) []byte {
			return src[:len(src)/4] // compression occurred
		},
	}
	svc, fs, _ := newTestService(ModeSequential, c)

	if _, err := svc.Ingest(ctx, []Upload{upload("big.jpg", "image/jpeg", source)}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	svc.Submit(ctx)

	got := svc.Items()[0]
	if got.Status != model.StatusDone {
		t.Fatalf("Status = %q, want done", got.Status)
	}
	if got.ResultSize <= 0 || got.ResultSize >= int64(len(source)) {
		t.Errorf("ResultSize = %d, want non-empty and smaller than %d", got.ResultSize, len(source))
	}
	if widths := c.recordedWidths(); len(widths) != 1 || widths[0] != 1200 {
		t.Errorf("dispatched widths = %v, want [1200] for default desktop preset", widths)
	}

	fs.mu.Lock()
	result, ok := fs.objects[got.ResultKey]
	fs.mu.Unlock()
	if !ok || len(result) == 0 {
		t.Error("encoded result not stored")
	}
}

func TestSubmitPartialFailure(t *testing.T) {
	ctx := context.Background()

	c := &fakeCodec{
		failOn: func(src []byte) bool {
			return bytes.Contains(src, []byte("second"))
		},
	}
	svc, _, _ := newTestService(ModeSequential, c)

	if _, err := svc.Ingest(ctx, []Upload{
		upload("one.png", "image/png", "first image"),
		upload("two.png", "image/png", "second image"),
	}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	svc.Submit(ctx)

	items := svc.Items()
	if len(items) != 2 {
		t.Fatalf("queue length = %d, want 2", len(items))
	}
	if items[0].Status != model.StatusDone {
		t.Errorf("item 1 Status = %q, want done", items[0].Status)
	}
	if items[1].Status != model.StatusError {
		t.Errorf("item 2 Status = %q, want error", items[1].Status)
	}
	if items[1].ResultKey != "" || items[1].ResultSize != 0 {
		t.Error("failed item must not carry result fields")
	}
	if items[1].FailReason == "" {
		t.Error("failed item should record a reason")
	}
}

func TestSubmitUsesPresetActiveAtInvocation(t *testing.T) {
	ctx := context.Background()

	c := &fakeCodec{}
	svc, _, _ := newTestService(ModeSequential, c)

	if _, err := svc.Ingest(ctx, []Upload{
		upload("a.png", "image/png", "aaa"),
		upload("b.png", "image/png", "bbb"),
	}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	svc.SetPreset(model.PresetMobile)
	svc.Submit(ctx)

	for _, w := range c.recordedWidths() {
		if w != 600 {
			t.Errorf("dispatched width = %d, want 600 for mobile", w)
		}
	}

	// Re-submitting converts every item again, with the width of the
	// preset active now, regardless of prior done statuses.
	svc.SetPreset(model.PresetLogo)
	svc.Submit(ctx)

	widths := c.recordedWidths()
	if len(widths) != 4 {
		t.Fatalf("codec called %d times, want 4", len(widths))
	}
	for _, w := range widths[2:] {
		if w != 250 {
			t.Errorf("re-dispatched width = %d, want 250 for logo", w)
		}
	}
}

func TestSequentialDispatchOrder(t *testing.T) {
	ctx := context.Background()

	var svc *Service
	var violations []string

	c := &fakeCodec{}
	c.onEncode = func(src []byte) {
		// At dispatch time every earlier item must already be terminal
		// and no other item may be in flight.
		processing := 0
		for _, it := range svc.Items() {
			if it.Status == model.StatusProcessing {
				processing++
			}
		}
		if processing > 1 {
			violations = append(violations, "more than one item in flight")
		}
	}

	svc, _, _ = newTestService(ModeSequential, c)

	if _, err := svc.Ingest(ctx, []Upload{
		upload("a.png", "image/png", "item-a"),
		upload("b.png", "image/png", "item-b"),
		upload("c.png", "image/png", "item-c"),
	}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	svc.Submit(ctx)

	for _, v := range violations {
		t.Error(v)
	}

	// Dispatch order follows queue order.
	c.mu.Lock()
	defer c.mu.Unlock()
	want := []string{"item-a", "item-b", "item-c"}
	for i, src := range c.srcs {
		if string(src) != want[i] {
			t.Errorf("dispatch %d = %q, want %q", i, src, want[i])
		}
	}
}

func TestConcurrentJoinWithholdsUpdatesUntilAllResolve(t *testing.T) {
	ctx := context.Background()

	const n = 3
	started := make(chan struct{}, n)
	release := make(chan struct{})

	c := &fakeCodec{}
	c.onEncode = func([]byte) {
		started <- struct{}{}
		<-release
	}

	svc, _, _ := newTestService(ModeConcurrent, c)

	if _, err := svc.Ingest(ctx, []Upload{
		upload("a.png", "image/png", "aaa"),
		upload("b.png", "image/png", "bbb"),
		upload("c.png", "image/png", "ccc"),
	}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.Submit(ctx)
	}()

	// Wait until every conversion is in flight.
	for i := 0; i < n; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for conversions to start")
		}
	}

	// All items were marked processing atomically and none is terminal
	// while even one conversion is still unresolved.
	for _, it := range svc.Items() {
		if it.Status != model.StatusProcessing {
			t.Errorf("mid-run Status = %q, want processing", it.Status)
		}
	}

	close(release)
	wg.Wait()

	for _, it := range svc.Items() {
		if it.Status != model.StatusDone {
			t.Errorf("final Status = %q, want done", it.Status)
		}
	}
}

func TestNotifierReceivesTerminalEvents(t *testing.T) {
	ctx := context.Background()

	c := &fakeCodec{
		failOn: func(src []byte) bool {
			return bytes.Contains(src, []byte("bad"))
		},
	}
	svc, _, n := newTestService(ModeConcurrent, c)

	if _, err := svc.Ingest(ctx, []Upload{
		upload("good.png", "image/png", "fine image"),
		upload("bad.png", "image/png", "bad image"),
	}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	svc.Submit(ctx)

	events := n.all()
	if len(events) != 2 {
		t.Fatalf("notifier received %d events, want 2", len(events))
	}

	byName := make(map[string]model.Status)
	for _, e := range events {
		byName[e.Filename] = e.Status
	}
	if byName["good.png"] != model.StatusDone {
		t.Errorf("good.png event status = %q, want done", byName["good.png"])
	}
	if byName["bad.png"] != model.StatusError {
		t.Errorf("bad.png event status = %q, want error", byName["bad.png"])
	}
}
