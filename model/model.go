// Package model holds the data types a FeedProvider hands the fetcher
// core: Implementation, Archive, Recipe, and the FetchRequest that
// bundles them for one top-level fetch call. Grounded on the teacher's
// distribution.Descriptor — a small, immutable value type with the same
// "just data, no behavior" shape these carry.
package model

import "github.com/zeroinstall-go/zerostore/manifest"

// Archive is one retrievable archive: spec.md §3's Archive entity. A
// zero start_offset and sub_dir are both "not set" — the zero value is a
// plain, whole-file archive with no rerooting.
type Archive struct {
	URL         string
	MIMEType    string
	Size        int64
	StartOffset int64
	SubDir      string
}

// Recipe is an ordered, non-empty list of Archives; archives later in
// the list overlay files written by earlier ones during extraction.
type Recipe struct {
	Archives []Archive
}

// Implementation is one fetchable unit: a target digest plus one or more
// ways to retrieve bytes that must hash to it. At least one of Archives
// or Recipes must be non-empty, and Digest must not be empty — both are
// caller (FeedProvider) invariants, not re-validated here.
type Implementation struct {
	Digest  manifest.Digest
	Archive []Archive
	Recipe  []Recipe
}

// FetchRequest bundles the implementations one Fetcher.Fetch call
// retrieves. Order is insignificant; the fetcher may dispatch these
// concurrently.
type FetchRequest struct {
	Implementations []Implementation
}
