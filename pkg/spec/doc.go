// Package spec parses and validates the declarative YAML spec file
// that describes the desired set of resources.
package spec
