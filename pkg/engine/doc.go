// Package engine provides the core resource model, planner, and
// topological scheduler for featurectl.
//
// featurectl tracks the convergence of a codebase toward a declared
// specification of resources (features, endpoints, modules), in the
// style of infrastructure-as-code tooling:
//
//	Spec (desired) + State (actual) --Planner--> Plan (ordered actions)
//	Plan --Scheduler--> dependency-respecting execution order
//
// The engine package is purely computational: it never touches the
// filesystem, spawns processes, or performs I/O. Execution of plans is
// the job of the apply package.
package engine
