package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zeina-health/companion/internal/model"
)

func TestProfileContext(t *testing.T) {
	assert.Empty(t, ProfileContext(nil))

	zero := 0
	u := &model.User{
		Name:               "Sara",
		Age:                34,
		MaritalStatus:      "married",
		LifeStage:          model.LifeStageTryingToConceive,
		ChildrenCount:      &zero,
		IsTryingToConceive: true,
		ActivityLevel:      "active",
	}
	assert.Equal(t,
		"\n[User Profile Context: Name: Sara, Age: 34, Marital Status: married, Life Stage: tryingToConceive, Children: 0, Goal: Trying to Conceive, Activity Level: active]",
		ProfileContext(u))

	assert.Equal(t, "\n[User Profile Context: Name: Lina]", ProfileContext(&model.User{Name: "Lina"}))
}

func TestApologyFallsBackToEnglish(t *testing.T) {
	assert.Equal(t, "I'm having a little trouble right now. Please try again later.", Apology("fr"))
	assert.NotEqual(t, Apology("en"), Apology("ar"))
}

func TestKeepLastTurns(t *testing.T) {
	call := model.ModelTurn("", []model.ToolCall{{ID: "c"}})
	result := model.ToolTurn(model.ToolResult{CallID: "c"})
	history := []model.Turn{
		model.UserTurn("1"), model.ModelTurn("a", nil),
		model.UserTurn("2"), call, result, model.ModelTurn("b", nil),
		model.UserTurn("3"), model.ModelTurn("c", nil),
	}

	tests := []struct {
		n    KeepLastTurns
		want int
	}{
		{n: 0, want: 8},
		{n: 100, want: 8},
		{n: 2, want: 2},
		{n: 3, want: 2},
		{n: 5, want: 2},
		{n: 6, want: 6},
	}
	for _, tt := range tests {
		got := tt.n.Apply(history)
		assert.Len(t, got, tt.want, "n=%d", tt.n)
		assert.Equal(t, model.TurnUser, got[0].Role, "n=%d", tt.n)
	}

	// A single exchange longer than the limit is kept whole.
	long := []model.Turn{model.UserTurn("x"), call, result, call, result, model.ModelTurn("y", nil)}
	assert.Len(t, KeepLastTurns(2).Apply(long), 6)
}
