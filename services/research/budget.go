// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package research

// BudgetField selects a usage counter on a RuntimeBudget.
type BudgetField string

// Usage counter names.
const (
	BudgetToolCalls BudgetField = "usedToolCalls"
	BudgetLiveFetch BudgetField = "usedLiveFetches"
	BudgetRetries   BudgetField = "usedRetries"
)

// RuntimeBudget caps tool calls, live fetches, and retries for one run.
//
// A max of zero disables enforcement for that counter. Usage counters only
// grow during a run; exceeding a limit never aborts work already in flight,
// it is surfaced as a BUDGET_EXCEEDED failure state at resolution time.
type RuntimeBudget struct {
	MaxToolCalls   int `json:"maxToolCalls"`
	MaxLiveFetches int `json:"maxLiveFetches"`
	MaxRetries     int `json:"maxRetries"`

	UsedToolCalls   int `json:"usedToolCalls"`
	UsedLiveFetches int `json:"usedLiveFetches"`
	UsedRetries     int `json:"usedRetries"`
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// NewRuntimeBudget normalizes a budget: negative values clamp to zero.
// Clamping happens only here; counters are never re-clamped afterwards.
func NewRuntimeBudget(initial RuntimeBudget) RuntimeBudget {
	return RuntimeBudget{
		MaxToolCalls:    clampNonNegative(initial.MaxToolCalls),
		MaxLiveFetches:  clampNonNegative(initial.MaxLiveFetches),
		MaxRetries:      clampNonNegative(initial.MaxRetries),
		UsedToolCalls:   clampNonNegative(initial.UsedToolCalls),
		UsedLiveFetches: clampNonNegative(initial.UsedLiveFetches),
		UsedRetries:     clampNonNegative(initial.UsedRetries),
	}
}

// Increment adds delta to one usage counter. Negative deltas add nothing,
// so counters are monotonic. Unknown fields are ignored.
func (b *RuntimeBudget) Increment(field BudgetField, delta int) {
	if b == nil {
		return
	}
	if delta < 0 {
		delta = 0
	}
	switch field {
	case BudgetToolCalls:
		b.UsedToolCalls += delta
	case BudgetLiveFetch:
		b.UsedLiveFetches += delta
	case BudgetRetries:
		b.UsedRetries += delta
	}
}

// Exceeded reports whether any enforced counter is over its limit.
// A counter is over only when its max is positive and usage is strictly
// greater than the max.
func (b RuntimeBudget) Exceeded() bool {
	if b.MaxToolCalls > 0 && b.UsedToolCalls > b.MaxToolCalls {
		return true
	}
	if b.MaxLiveFetches > 0 && b.UsedLiveFetches > b.MaxLiveFetches {
		return true
	}
	if b.MaxRetries > 0 && b.UsedRetries > b.MaxRetries {
		return true
	}
	return false
}
