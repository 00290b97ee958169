package loader

import (
	"path/filepath"
	"strings"
)

// diataxisFolders maps common folder-naming conventions onto the four
// Diátaxis categories the Search Executor's filter grammar validates
// against (search.ValidCategories).
var diataxisFolders = map[string]string{
	"tutorial":        "tutorial",
	"tutorials":       "tutorial",
	"getting-started": "tutorial",
	"howto":           "howto",
	"how-to":          "howto",
	"guides":          "howto",
	"guide":           "howto",
	"reference":       "reference",
	"references":      "reference",
	"api":             "reference",
	"explanation":     "explanation",
	"explanations":    "explanation",
	"concepts":        "explanation",
	"background":      "explanation",
}

// deriveCategory classifies path by matching its directory segments against
// diataxisFolders, innermost segment first, falling back to "" (uncategorized)
// when nothing matches. "" is a valid, never-filtered-in category: a
// Categories filter with no match on "" simply never selects these files.
func deriveCategory(path string) string {
	dir := filepath.ToSlash(filepath.Dir(path))
	segments := strings.Split(dir, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if cat, ok := diataxisFolders[strings.ToLower(segments[i])]; ok {
			return cat
		}
	}
	return ""
}

// deriveTitle returns the document's first level-1 or level-2 markdown
// heading ("# Title" / "## Title"), or the file's base name (extension
// stripped) when the document has no heading.
func deriveTitle(path string, content []byte) string {
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if title, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(title)
		}
		if title, ok := strings.CutPrefix(line, "## "); ok {
			return strings.TrimSpace(title)
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
