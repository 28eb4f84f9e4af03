package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bnema/valuation-session-cli/internal/domain"
	"github.com/bnema/valuation-session-cli/internal/ports"
)

const (
	// DefaultYoungThreshold is how long an incomplete snapshot stays
	// readable. It covers in-progress form edits; past it, only complete
	// snapshots are served.
	DefaultYoungThreshold = 10 * time.Minute
	DefaultSnapshotTTL    = 24 * time.Hour
)

type SessionServiceOptions struct {
	YoungThreshold time.Duration
	SnapshotTTL    time.Duration
}

func (o SessionServiceOptions) withDefaults() SessionServiceOptions {
	if o.YoungThreshold <= 0 {
		o.YoungThreshold = DefaultYoungThreshold
	}
	if o.SnapshotTTL <= 0 {
		o.SnapshotTTL = DefaultSnapshotTTL
	}

	return o
}

// SessionService owns the durable per-entity snapshot cache: validity policy
// on read, wholesale replacement on write, and cross-context invalidation
// through the message bus.
type SessionService struct {
	store ports.SnapshotStore
	bus   ports.MessageBus
	clock ports.Clock
	opts  SessionServiceOptions
	log   *slog.Logger

	unsubscribe func()
}

func NewSessionService(store ports.SnapshotStore, bus ports.MessageBus, clock ports.Clock, opts SessionServiceOptions, logger *slog.Logger) *SessionService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &SessionService{
		store: store,
		bus:   bus,
		clock: clock,
		opts:  opts.withDefaults(),
		log:   logger,
	}
	if bus != nil {
		s.unsubscribe = bus.Subscribe(s.handleSync)
	}

	return s
}

type ReadResult struct {
	Snapshot domain.Snapshot
	// RenderReady means the snapshot is complete and unexpired, so the
	// caller may render from it without waiting for the network.
	RenderReady bool
}

// Read applies the validity policy: a snapshot younger than the young
// threshold is accepted regardless of completeness; an older one must be
// complete and unexpired. Anything else, including corrupt stored data, is
// a miss — never an error that blocks the caller.
func (s *SessionService) Read(ctx context.Context, id domain.EntityID) (ReadResult, error) {
	snapshot, err := s.store.Load(ctx, id)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ReadResult{}, ctxErr
		}
		if !errors.Is(err, domain.ErrSnapshotNotFound) {
			s.log.Warn("snapshot load degraded to miss", "entity_id", string(id), "error", err)
		}
		return ReadResult{}, domain.ErrSnapshotNotFound
	}

	now := s.clock.Now()
	age := now.Sub(snapshot.CachedAt)
	complete := snapshot.Complete()
	fresh := !snapshot.Expired(now)

	if age <= s.opts.YoungThreshold {
		return ReadResult{Snapshot: snapshot, RenderReady: complete && fresh}, nil
	}
	if complete && fresh {
		return ReadResult{Snapshot: snapshot, RenderReady: true}, nil
	}

	// Rejected by policy: a fresh fetch supersedes it, so drop the entry.
	if err := s.store.Delete(ctx, id); err != nil {
		s.log.Warn("delete rejected snapshot", "entity_id", string(id), "error", err)
	}

	return ReadResult{}, domain.ErrSnapshotNotFound
}

type WriteOptions struct {
	// Optimistic marks a write made right after a successful mutation, so
	// the next read renders without a network round trip.
	Optimistic bool
	// Version applies a snapshot produced elsewhere (another context or a
	// fetched server result). Empty means mint a fresh token. A version
	// older than the stored one is a stale write: discarded, not an error.
	Version string
}

func (s *SessionService) Write(ctx context.Context, id domain.EntityID, payload domain.SessionPayload, opts WriteOptions) (domain.Snapshot, error) {
	version := opts.Version
	if version == "" {
		version = newVersionToken()
	}

	if existing, err := s.store.Load(ctx, id); err == nil {
		if opts.Version != "" && !domain.NewerVersion(version, existing.Version) {
			s.log.Debug("discarding stale write", "entity_id", string(id), "version", version)
			return existing, nil
		}
	}

	now := s.clock.Now()
	snapshot := domain.Snapshot{
		EntityID:  id,
		Version:   version,
		CachedAt:  now,
		ExpiresAt: now.Add(s.opts.SnapshotTTL),
		Payload:   payload,
	}

	if err := s.store.Save(ctx, snapshot); err != nil {
		return domain.Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}

	kind := domain.SyncSessionRefreshed
	if opts.Optimistic {
		kind = domain.SyncSessionUpdated
	}
	s.broadcast(ctx, kind, id, version)

	return snapshot, nil
}

func (s *SessionService) Invalidate(ctx context.Context, id domain.EntityID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("invalidate snapshot: %w", err)
	}

	s.broadcast(ctx, domain.SyncSessionInvalidated, id, "")

	return nil
}

// RecordAnswer stores a single form answer locally. Any previously computed
// artifacts no longer match the edited form, so they are cleared: the
// snapshot becomes incomplete until the next refresh.
func (s *SessionService) RecordAnswer(ctx context.Context, id domain.EntityID, companyID, field, value string) (domain.Snapshot, error) {
	payload := domain.SessionPayload{}
	if result, err := s.Read(ctx, id); err == nil {
		payload = result.Snapshot.Payload
	}

	answers := payload.CloneAnswers()
	answers[field] = value
	payload.Answers = answers
	if companyID != "" {
		payload.CompanyID = companyID
	}
	payload.Result = nil
	payload.ReportHTML = ""
	payload.InfoHTML = ""

	return s.Write(ctx, id, payload, WriteOptions{Optimistic: true})
}

func (s *SessionService) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// handleSync reacts to hints from sibling contexts. Updates carrying a
// newer version drop the local entry so the next read re-validates; the
// local copy is never patched from the message itself. Deletions here do
// not rebroadcast, which keeps contexts from ping-ponging invalidations.
func (s *SessionService) handleSync(msg domain.SyncMessage) {
	if msg.EntityID == "" {
		return
	}

	ctx := context.Background()

	switch msg.Kind {
	case domain.SyncSessionInvalidated:
		if err := s.store.Delete(ctx, msg.EntityID); err != nil {
			s.log.Warn("apply remote invalidation", "entity_id", string(msg.EntityID), "error", err)
		}
	case domain.SyncSessionUpdated, domain.SyncSessionRefreshed:
		local, err := s.store.Load(ctx, msg.EntityID)
		if err != nil {
			return
		}
		if msg.Version == "" || !domain.NewerVersion(msg.Version, local.Version) {
			return
		}
		if err := s.store.Delete(ctx, msg.EntityID); err != nil {
			s.log.Warn("drop superseded snapshot", "entity_id", string(msg.EntityID), "error", err)
		}
	}
}

func (s *SessionService) broadcast(ctx context.Context, kind domain.SyncKind, id domain.EntityID, version string) {
	if s.bus == nil {
		return
	}

	msg := domain.SyncMessage{
		Kind:     kind,
		EntityID: id,
		Version:  version,
		SentAt:   s.clock.Now(),
	}
	if err := s.bus.Broadcast(ctx, msg); err != nil {
		// Sync is best-effort: siblings re-validate on their own reads.
		s.log.Debug("broadcast sync message", "kind", string(kind), "error", err)
	}
}

// Version tokens are UUIDv7 strings: time-ordered, so two contexts writing
// within the same millisecond still produce distinguishable tokens.
func newVersionToken() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
