// Package categorize is the File Categorizer: partitions discovered
// paths against the store's current File records into skip/add/update/
// delete sets by comparing content hashes.
package categorize

import (
	"context"

	"docbase/internal/hashutil"
)

// KnownFile is the subset of a stored File record the categorizer needs.
type KnownFile struct {
	FilePath    string
	ContentHash string
}

// Result is the four-way partition produced by Categorize.
type Result struct {
	Skip   []string
	Add    []string
	Update []string
	Delete []string
	// Errors maps a path that failed to hash to the encountered error. Such
	// paths are excluded from every set but do not fail the overall
	// categorization.
	Errors map[string]error
}

// Categorize partitions discovered paths against known: a path the store
// has never seen is Add, a hash match is Skip, a hash change is Update.
//
// includeDelete controls whether paths present in known but absent from
// discovered populate Result.Delete (LoaderConfig.cleanup gates this).
func Categorize(ctx context.Context, discovered []string, known map[string]KnownFile, includeDelete bool) Result {
	res := Result{Errors: make(map[string]error)}
	seen := make(map[string]bool, len(discovered))

	for _, path := range discovered {
		seen[path] = true
		kf, exists := known[path]
		if !exists {
			res.Add = append(res.Add, path)
			continue
		}
		hash, err := hashutil.HashFile(ctx, path)
		if err != nil {
			res.Errors[path] = err
			continue
		}
		if hash == kf.ContentHash {
			res.Skip = append(res.Skip, path)
		} else {
			res.Update = append(res.Update, path)
		}
	}

	if includeDelete {
		for path := range known {
			if !seen[path] {
				res.Delete = append(res.Delete, path)
			}
		}
	}
	return res
}

// ForceUpdate is Categorize's `force` variant: every discovered path that
// isn't new is treated as update regardless of hash match.
func ForceUpdate(discovered []string, known map[string]KnownFile, includeDelete bool) Result {
	res := Result{Errors: make(map[string]error)}
	seen := make(map[string]bool, len(discovered))

	for _, path := range discovered {
		seen[path] = true
		if _, exists := known[path]; exists {
			res.Update = append(res.Update, path)
		} else {
			res.Add = append(res.Add, path)
		}
	}

	if includeDelete {
		for path := range known {
			if !seen[path] {
				res.Delete = append(res.Delete, path)
			}
		}
	}
	return res
}
