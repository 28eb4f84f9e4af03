package application

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/valuation-session-cli/internal/domain"
	"github.com/bnema/valuation-session-cli/internal/ports"
	"github.com/bnema/valuation-session-cli/internal/resilience/breaker"
	"github.com/bnema/valuation-session-cli/internal/resilience/dedup"
)

const DefaultRefreshMaxAge = 30 * time.Second

// FetchService is the read-through path: cache-first reads, and network
// refreshes funneled through the deduplicator and the circuit breaker
// before landing back in the session cache as an optimistic write.
type FetchService struct {
	sessions *SessionService
	client   ports.ValuationClient
	breaker  *breaker.Breaker
	dedup    *dedup.Deduplicator
	maxAge   time.Duration
}

func NewFetchService(sessions *SessionService, client ports.ValuationClient, brk *breaker.Breaker, ddp *dedup.Deduplicator, maxAge time.Duration) *FetchService {
	if maxAge <= 0 {
		maxAge = DefaultRefreshMaxAge
	}

	return &FetchService{
		sessions: sessions,
		client:   client,
		breaker:  brk,
		dedup:    ddp,
		maxAge:   maxAge,
	}
}

// Cached returns the locally cached snapshot without touching the network.
func (f *FetchService) Cached(ctx context.Context, id domain.EntityID) (ReadResult, error) {
	return f.sessions.Read(ctx, id)
}

// Refresh recomputes the valuation from the cached form answers and writes
// the authoritative result back optimistically. Concurrent refreshes of the
// same entity share one execution; a tripped breaker fails fast with
// breaker.ErrOpen before any network call is made.
func (f *FetchService) Refresh(ctx context.Context, id domain.EntityID) (domain.Snapshot, error) {
	cached, err := f.sessions.Read(ctx, id)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("refresh %q: %w", id, err)
	}
	payload := cached.Snapshot.Payload
	if payload.CompanyID == "" || len(payload.Answers) == 0 {
		return domain.Snapshot{}, fmt.Errorf("refresh %q: %w", id, domain.ErrIncompleteForm)
	}

	value, err := f.dedup.Do(ctx, refreshKey(id), f.maxAge, func(ctx context.Context) (any, error) {
		return f.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
			computed, err := f.compute(ctx, payload)
			if err != nil {
				return nil, err
			}

			snapshot, err := f.sessions.Write(ctx, id, computed, WriteOptions{Optimistic: true})
			if err != nil {
				return nil, err
			}

			return snapshot, nil
		})
	})
	if err != nil {
		return domain.Snapshot{}, err
	}

	snapshot, ok := value.(domain.Snapshot)
	if !ok {
		return domain.Snapshot{}, fmt.Errorf("refresh %q: unexpected result type %T", id, value)
	}

	return snapshot, nil
}

// Get is the cache-first strategy: a complete, valid snapshot is returned
// immediately; otherwise a refresh runs. The second return value reports
// whether the snapshot came from cache.
func (f *FetchService) Get(ctx context.Context, id domain.EntityID) (domain.Snapshot, bool, error) {
	result, err := f.sessions.Read(ctx, id)
	if err == nil && result.RenderReady {
		return result.Snapshot, true, nil
	}

	snapshot, err := f.Refresh(ctx, id)
	if err != nil {
		return domain.Snapshot{}, false, err
	}

	return snapshot, false, nil
}

func (f *FetchService) IsRefreshing(id domain.EntityID) bool {
	return f.dedup.IsPending(refreshKey(id))
}

// compute replays the recorded answers through the engine conversation
// until it reports completion.
func (f *FetchService) compute(ctx context.Context, payload domain.SessionPayload) (domain.SessionPayload, error) {
	start, err := f.client.StartConversation(ctx, payload.CompanyID)
	if err != nil {
		return domain.SessionPayload{}, err
	}

	result := domain.SessionPayload{
		CompanyID:      payload.CompanyID,
		ConversationID: start.ConversationID,
		Answers:        payload.CloneAnswers(),
	}

	step := start.Step
	field := start.NextField
	for {
		value, ok := result.Answers[field]
		if !ok {
			return domain.SessionPayload{}, fmt.Errorf("missing answer for %q: %w", field, domain.ErrIncompleteForm)
		}

		reply, err := f.client.SubmitStep(ctx, domain.ConversationStep{
			CompanyID:      payload.CompanyID,
			ConversationID: start.ConversationID,
			Step:           step,
			Field:          field,
			Value:          value,
		})
		if err != nil {
			return domain.SessionPayload{}, err
		}

		result.Step = reply.Step
		if reply.Complete {
			result.Result = reply.Result
			result.ReportHTML = reply.ReportHTML
			result.InfoHTML = reply.InfoHTML
			return result, nil
		}

		step = reply.Step
		field = reply.NextField
	}
}

func refreshKey(id domain.EntityID) string {
	return "refresh:" + string(id)
}
