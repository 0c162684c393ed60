// Package apply executes a plan: it orders the plan's actions by
// dependency, walks them in one of four execution modes (interactive,
// auto, hybrid, market), drives agents to do the work, verifies the
// outcome, and records progress in state after every resource.
package apply
