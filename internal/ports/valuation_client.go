package ports

import (
	"context"

	"github.com/bnema/valuation-session-cli/internal/domain"
)

type ValuationClient interface {
	StartConversation(ctx context.Context, companyID string) (domain.ConversationStart, error)
	SubmitStep(ctx context.Context, step domain.ConversationStep) (domain.ConversationReply, error)
	Health(ctx context.Context) error
}
