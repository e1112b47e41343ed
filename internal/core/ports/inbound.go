package ports

import (
	"context"

	"github.com/finsightlab/equity-copilot/internal/core/domain"
)

// AskService answers one research question end to end.
type AskService interface {
	Ask(ctx context.Context, question string) (*domain.AskResult, error)
}
