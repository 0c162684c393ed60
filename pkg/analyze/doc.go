// Package analyze extracts symbols from source files using tree-sitter
// and scores implementations against declared spec attributes. It backs
// the deepest verification tier: rather than trusting that a file exists,
// it checks that the functions and classes the spec names are present.
package analyze
