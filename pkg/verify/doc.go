// Package verify decides whether a resource's claimed implementation
// holds up. Verification is tiered: the basic tier checks that declared
// files exist and are non-empty, the diff tier additionally requires
// them to show up in the git working-tree diff, and the full tier adds
// symbol-level analysis of file contents.
//
// Verification degrades gracefully. A missing git binary or an
// unreadable file lowers the score and adds a diagnostic; it never
// aborts an apply.
package verify
