package batch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/okarpov/imgpress/internal/model"
	"github.com/okarpov/imgpress/internal/queue"
)

// Mode selects the conversion orchestration strategy.
type Mode string

const (
	// ModeSequential processes items one at a time in queue order; a
	// failed item does not block the ones after it, and each outcome is
	// visible as soon as it is recorded.
	ModeSequential Mode = "sequential"

	// ModeConcurrent marks all items processing at once, launches every
	// conversion concurrently, and applies all terminal statuses in a
	// single update after the last one resolves.
	ModeConcurrent Mode = "concurrent"
)

// ParseMode validates a raw driver mode value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSequential, ModeConcurrent:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown driver mode %q", s)
	}
}

// Submit attempts to convert every queued item with the preset active
// at the time of the call, regardless of prior statuses. Failures are
// contained per item: Submit itself always completes, with outcomes
// reflected only in item statuses.
func (s *Service) Submit(ctx context.Context) {
	items := s.store.Snapshot()
	if len(items) == 0 {
		return
	}

	width := s.store.Preset().Width()

	zlog.Logger.Info().
		Int("items", len(items)).
		Int("width", width).
		Str("mode", string(s.mode)).
		Msg("starting conversion run")

	switch s.mode {
	case ModeConcurrent:
		s.runConcurrent(ctx, items, width)
	default:
		s.runSequential(ctx, items, width)
	}
}

// runSequential dispatches items strictly in order: item N+1 is not
// started until item N's outcome is recorded.
func (s *Service) runSequential(ctx context.Context, items []model.Item, width int) {
	for _, item := range items {
		s.store.MarkProcessing(item.ID)

		out := s.convert(ctx, item, width)
		s.store.Resolve(out)

		s.notifyOutcome(ctx, out.ID)
	}
}

// runConcurrent launches all conversions at once and withholds every
// status update until the slowest one has resolved, so observers never
// see a half-finished run.
func (s *Service) runConcurrent(ctx context.Context, items []model.Item, width int) {
	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	s.store.MarkProcessing(ids...)

	outcomes := make([]queue.Outcome, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item model.Item) {
			defer wg.Done()
			outcomes[i] = s.convert(ctx, item, width)
		}(i, item)
	}
	wg.Wait()

	s.store.Resolve(outcomes...)

	for _, out := range outcomes {
		s.notifyOutcome(ctx, out.ID)
	}
}

// convert runs one conversion attempt: load the original bytes, hand
// them to the codec with the resolved width, and store the encoded
// result. Any failure becomes the item's terminal error outcome.
func (s *Service) convert(ctx context.Context, item model.Item, width int) queue.Outcome {
	src, err := s.loadSource(ctx, item)
	if err != nil {
		zlog.Logger.Err(err).Str("item", item.ID.String()).Msg("conversion failed")
		return queue.Outcome{ID: item.ID, FailReason: err.Error()}
	}

	encoded, err := s.codec.Encode(ctx, src, width)
	if err != nil {
		zlog.Logger.Err(err).Str("item", item.ID.String()).Msg("conversion failed")
		return queue.Outcome{ID: item.ID, FailReason: err.Error()}
	}

	key, err := s.storage.Save(ctx, "results", item.ID.String()+".avif", bytes.NewReader(encoded))
	if err != nil {
		zlog.Logger.Err(err).Str("item", item.ID.String()).Msg("failed to store result")
		return queue.Outcome{ID: item.ID, FailReason: err.Error()}
	}

	return queue.Outcome{
		ID:         item.ID,
		ResultKey:  key,
		ResultSize: int64(len(encoded)),
	}
}

func (s *Service) loadSource(ctx context.Context, item model.Item) ([]byte, error) {
	reader, err := s.storage.Load(ctx, item.SourceKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load original: %w", err)
	}
	defer reader.Close()

	src, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read original: %w", err)
	}

	return src, nil
}

// notifyOutcome publishes the item's terminal state. Items removed
// while a run was in flight are skipped.
func (s *Service) notifyOutcome(ctx context.Context, id uuid.UUID) {
	item, ok := s.store.Get(id)
	if !ok || !item.Status.Terminal() {
		return
	}

	s.notify.ItemFinished(ctx, item)
}
