package recurrence

import (
	"studyverse/internal/goaltree"
	"studyverse/internal/model"
)

// Flatten lists every goal of the forest, parents first, with SubGoals
// cleared so nested deadlines show up as calendar entries of their own.
// The input is not modified.
func Flatten(goals []model.Goal) []model.Goal {
	out := make([]model.Goal, 0, goaltree.Count(goals))
	goaltree.Walk(goals, func(g model.Goal, _ string, _ int) bool {
		flat := g.Clone()
		flat.SubGoals = nil
		out = append(out, flat)
		return true
	})
	return out
}
