// Package agent abstracts the coding agents that do the actual
// implementation work during apply. A Backend receives a prompt
// describing one resource and reports whether it succeeded; backends
// can be external CLI tools run as subprocesses, in-process functions,
// or chains that fall through to the next agent on failure.
package agent
