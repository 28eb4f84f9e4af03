package fswatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/bnema/valuation-session-cli/internal/domain"
	"github.com/bnema/valuation-session-cli/internal/ports"
)

const (
	messageDirMode  = 0o700
	messageFileMode = 0o600
	messageSuffix   = ".json"
	tempFilePattern = ".sync-*.tmp"

	// Message files are transient: each broadcast sweeps files older than
	// this, which stands in for the write-then-remove trick on the storage
	// key. Readers tolerate files vanishing under them.
	messageMaxAge = 5 * time.Second
)

var errBusClosed = errors.New("fswatch bus is closed")

// Bus delivers sync messages between processes by dropping message files in
// a shared directory; other contexts learn about them through file-change
// notifications rather than polling.
type Bus struct {
	dir     string
	origin  string
	watcher *fsnotify.Watcher
	log     *slog.Logger

	mu       sync.Mutex
	handlers map[int]func(domain.SyncMessage)
	nextID   int
	closed   bool

	done chan struct{}
}

var _ ports.MessageBus = (*Bus)(nil)

func NewBus(dir, origin string, logger *slog.Logger) (*Bus, error) {
	if origin == "" {
		origin = uuid.NewString()
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, messageDirMode); err != nil {
		return nil, fmt.Errorf("create sync directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create sync watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch sync directory: %w", err)
	}

	b := &Bus{
		dir:      filepath.Clean(dir),
		origin:   origin,
		watcher:  watcher,
		log:      logger,
		handlers: map[int]func(domain.SyncMessage){},
		done:     make(chan struct{}),
	}
	go b.loop()

	return b, nil
}

func (b *Bus) Broadcast(ctx context.Context, msg domain.SyncMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errBusClosed
	}
	b.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Origin == "" {
		msg.Origin = b.origin
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode sync message: %w", err)
	}

	if err := b.writeMessage(msg.ID, data); err != nil {
		return err
	}
	b.sweepStale()

	return nil
}

func (b *Bus) Subscribe(handler func(domain.SyncMessage)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		delete(b.handlers, id)
	}
}

func (b *Bus) Origin() string {
	return b.origin
}

func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.handlers = map[int]func(domain.SyncMessage){}
	b.mu.Unlock()

	close(b.done)

	return b.watcher.Close()
}

func (b *Bus) loop() {
	for {
		select {
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			b.consume(event.Name)
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.log.Warn("sync watcher error", "error", err)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) consume(path string) {
	if !strings.HasSuffix(path, messageSuffix) {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		// Another context may have swept the file already.
		if !errors.Is(err, os.ErrNotExist) {
			b.log.Debug("read sync message", "path", path, "error", err)
		}
		return
	}

	var msg domain.SyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		b.log.Debug("decode sync message", "path", path, "error", err)
		return
	}
	if msg.Origin == b.origin {
		return
	}

	b.mu.Lock()
	handlers := make([]func(domain.SyncMessage), 0, len(b.handlers))
	for _, handler := range b.handlers {
		handlers = append(handlers, handler)
	}
	b.mu.Unlock()

	for _, handler := range handlers {
		go handler(msg)
	}
}

func (b *Bus) writeMessage(id string, data []byte) error {
	tempFile, err := os.CreateTemp(b.dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp sync file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp sync file: %w", err)
	}

	if err := tempFile.Chmod(messageFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp sync file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp sync file: %w", err)
	}

	name := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), id, messageSuffix)
	if err := os.Rename(tempName, filepath.Join(b.dir, name)); err != nil {
		return fmt.Errorf("publish sync file: %w", err)
	}

	cleanup = false

	return nil
}

func (b *Bus) sweepStale() {
	dirEntries, err := os.ReadDir(b.dir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-messageMaxAge)
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() || !strings.HasSuffix(dirEntry.Name(), messageSuffix) {
			continue
		}
		info, err := dirEntry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		_ = os.Remove(filepath.Join(b.dir, dirEntry.Name()))
	}
}
