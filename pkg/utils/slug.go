package utils

import (
	"github.com/gosimple/slug"
)

// NormalizeSlug creates a URL-friendly slug using the gosimple/slug library
func NormalizeSlug(text string) string {
	if text == "" {
		return ""
	}

	return slug.Make(text)
}

// JobSlug normalizes a job name into the stable ledger key. Every process
// must derive the same key for the same job, whatever casing or spacing the
// registering code used.
func JobSlug(name string) string {
	return NormalizeSlug(name)
}
