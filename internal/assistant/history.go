package assistant

import (
	"github.com/zeina-health/companion/internal/model"
)

// HistoryPolicy bounds the turn log kept between messages.
type HistoryPolicy interface {
	Apply(history []model.Turn) []model.Turn
}

// KeepAll keeps every turn.
type KeepAll struct{}

// Apply implements HistoryPolicy.
func (KeepAll) Apply(history []model.Turn) []model.Turn { return history }

// KeepLastTurns keeps roughly the last N turns. The cut always lands on a
// user turn so a tool call is never separated from its result; the
// latest exchange is kept whole even when it is longer than N.
type KeepLastTurns int

// Apply implements HistoryPolicy.
func (n KeepLastTurns) Apply(history []model.Turn) []model.Turn {
	limit := int(n)
	if limit <= 0 || len(history) <= limit {
		return history
	}

	for i := len(history) - limit; i < len(history); i++ {
		if history[i].Role == model.TurnUser {
			return history[i:]
		}
	}
	for i := len(history) - limit - 1; i >= 0; i-- {
		if history[i].Role == model.TurnUser {
			return history[i:]
		}
	}
	return history
}
