package application

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/valuation-session-cli/internal/cache"
	"github.com/bnema/valuation-session-cli/internal/domain"
	"github.com/bnema/valuation-session-cli/internal/ports"
	"github.com/bnema/valuation-session-cli/internal/resilience/breaker"
)

type SystemStatus struct {
	Breaker    breaker.Stats
	TokenCache cache.Stats
	Sessions   []SessionStatus
}

type SessionStatus struct {
	EntityID    domain.EntityID
	Version     string
	CachedAt    time.Time
	ExpiresAt   time.Time
	Complete    bool
	RenderReady bool
	Step        int
	AnswerCount int
}

// StatusService assembles a point-in-time view of the resilience and cache
// state for the status command. It reads the store directly so inspecting
// state never deletes policy-rejected snapshots.
type StatusService struct {
	store   ports.SnapshotStore
	breaker *breaker.Breaker
	auth    *AuthService
	clock   ports.Clock
	opts    SessionServiceOptions
}

func NewStatusService(store ports.SnapshotStore, brk *breaker.Breaker, auth *AuthService, clock ports.Clock, opts SessionServiceOptions) *StatusService {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &StatusService{
		store:   store,
		breaker: brk,
		auth:    auth,
		clock:   clock,
		opts:    opts.withDefaults(),
	}
}

func (s *StatusService) Collect(ctx context.Context) (SystemStatus, error) {
	ids, err := s.store.List(ctx)
	if err != nil {
		return SystemStatus{}, fmt.Errorf("list sessions: %w", err)
	}

	now := s.clock.Now()
	sessions := make([]SessionStatus, 0, len(ids))
	for _, id := range ids {
		snapshot, err := s.store.Load(ctx, id)
		if err != nil {
			continue
		}

		complete := snapshot.Complete()
		fresh := !snapshot.Expired(now)
		age := now.Sub(snapshot.CachedAt)
		usable := age <= s.opts.YoungThreshold || (complete && fresh)

		sessions = append(sessions, SessionStatus{
			EntityID:    id,
			Version:     snapshot.Version,
			CachedAt:    snapshot.CachedAt,
			ExpiresAt:   snapshot.ExpiresAt,
			Complete:    complete,
			RenderReady: usable && complete && fresh,
			Step:        snapshot.Payload.Step,
			AnswerCount: len(snapshot.Payload.Answers),
		})
	}

	status := SystemStatus{Sessions: sessions}
	if s.breaker != nil {
		status.Breaker = s.breaker.Stats()
	}
	if s.auth != nil {
		status.TokenCache = s.auth.Stats()
	}

	return status, nil
}
