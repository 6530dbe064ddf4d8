package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/okarpov/imgpress/internal/model"
	"github.com/okarpov/imgpress/internal/queue"
)

var (
	// ErrItemNotFound is returned when no queued item has the given id.
	ErrItemNotFound = errors.New("item not found")
	// ErrResultNotReady is returned when a download is requested for an
	// item that has not finished successfully.
	ErrResultNotReady = errors.New("conversion result not ready")
)

// fileStorage defines the interface for storing objects (e.g., local
// filesystem or MinIO).
type fileStorage interface {
	Save(ctx context.Context, subdir, name string, src io.Reader) (string, error)
	Load(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// codec defines the interface to the image re-encoding collaborator.
// The call suspends until the codec resolves with an encoded buffer or
// an error.
type codec interface {
	Encode(ctx context.Context, src []byte, width int) ([]byte, error)
}

// notifier receives per-item completion events.
type notifier interface {
	ItemFinished(ctx context.Context, item model.Item)
}

// Upload is one file from a user selection, as handed over by the API
// layer.
type Upload struct {
	Filename    string
	ContentType string
	Data        io.Reader
}

// Service provides the batch conversion surface: ingesting uploads into
// the queue, running conversions, and managing item lifecycle. The
// queue store is the single source of truth; the service owns the
// storage handles of queued items and releases each exactly once, at
// removal, clear-all, or shutdown.
type Service struct {
	store   *queue.Store
	storage fileStorage
	codec   codec
	notify  notifier
	mode    Mode
}

// NewService creates a new Service.
func NewService(store *queue.Store, fs fileStorage, c codec, n notifier, mode Mode) *Service {
	return &Service{
		store:   store,
		storage: fs,
		codec:   c,
		notify:  n,
		mode:    mode,
	}
}

// Ingest filters a user file selection down to images and appends one
// pending item per accepted file. Files whose declared media type does
// not start with "image/" are silently dropped; an all-rejected
// selection appends nothing and is not an error. The original bytes
// are stored once per item and serve as its preview handle.
func (s *Service) Ingest(ctx context.Context, uploads []Upload) ([]model.Item, error) {
	var added []model.Item

	for _, up := range uploads {
		if !strings.HasPrefix(up.ContentType, "image/") {
			zlog.Logger.Debug().
				Str("filename", up.Filename).
				Str("content_type", up.ContentType).
				Msg("skipping non-image file")
			continue
		}

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, up.Data); err != nil {
			return added, fmt.Errorf("ingest: failed to read %s: %w", up.Filename, err)
		}

		id := uuid.New()
		name := id.String() + filepath.Ext(up.Filename)

		key, err := s.storage.Save(ctx, "originals", name, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return added, fmt.Errorf("ingest: failed to store %s: %w", up.Filename, err)
		}

		item := model.Item{
			ID:         id,
			Filename:   up.Filename,
			SourceKey:  key,
			SourceSize: int64(buf.Len()),
			Status:     model.StatusPending,
		}

		s.store.Append(item)
		added = append(added, item)
	}

	return added, nil
}

// Items returns the current queue in insertion order.
func (s *Service) Items() []model.Item {
	return s.store.Snapshot()
}

// Preset returns the active output preset.
func (s *Service) Preset() model.Preset {
	return s.store.Preset()
}

// SetPreset replaces the active output preset. Items already converted
// keep their results; only later Submit calls use the new width.
func (s *Service) SetPreset(p model.Preset) {
	s.store.SetPreset(p)
}

// Remove deletes the item with the given id and releases its storage
// handles. Removing an unknown id leaves the queue unchanged.
func (s *Service) Remove(ctx context.Context, id uuid.UUID) bool {
	item, ok := s.store.Remove(id)
	if !ok {
		return false
	}

	s.releaseItem(ctx, item)

	return true
}

// ClearAll empties the queue and releases every item's storage handles.
func (s *Service) ClearAll(ctx context.Context) {
	for _, item := range s.store.Drain() {
		s.releaseItem(ctx, item)
	}
}

// Download returns a done item together with a reader over its encoded
// result. The caller must close the reader.
func (s *Service) Download(ctx context.Context, id uuid.UUID) (model.Item, io.ReadCloser, error) {
	item, ok := s.store.Get(id)
	if !ok {
		return model.Item{}, nil, ErrItemNotFound
	}

	if item.Status != model.StatusDone {
		return model.Item{}, nil, ErrResultNotReady
	}

	reader, err := s.storage.Load(ctx, item.ResultKey)
	if err != nil {
		return model.Item{}, nil, fmt.Errorf("download: failed to load result: %w", err)
	}

	return item, reader, nil
}

// Shutdown releases all remaining item handles at session teardown.
func (s *Service) Shutdown(ctx context.Context) {
	s.ClearAll(ctx)
}

// releaseItem is the single place storage handles are released, so an
// item popped from the store gives up its objects exactly once.
func (s *Service) releaseItem(ctx context.Context, item model.Item) {
	if err := s.storage.Delete(ctx, item.SourceKey); err != nil {
		zlog.Logger.Err(err).
			Str("key", item.SourceKey).
			Msg("failed to release original object")
	}

	if item.ResultKey == "" {
		return
	}
	if err := s.storage.Delete(ctx, item.ResultKey); err != nil {
		zlog.Logger.Err(err).
			Str("key", item.ResultKey).
			Msg("failed to release result object")
	}
}
