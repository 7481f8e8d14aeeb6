// Package category derives a hierarchical, slash-separated category path
// for an imported DAT, per spec §4.4.
package category

import (
	"path/filepath"
	"regexp"
	"strings"
)

// tosecPattern matches "<manufacturer+model> - <section>[ - <subsection>]
// (TOSEC-...)" against a DAT's base filename, stripped of its extension.
var tosecPattern = regexp.MustCompile(`^(.+?) - (.+?)(?: - (.+?))? \(TOSEC-[^)]*\)$`)

// Derive computes the category path for a DAT, applying the priority
// order from spec §4.4: explicit override, then directory-based, then
// TOSEC filename, then root.
//
// sourcePath is the DAT's path on disk; importRoot is the directory the
// caller started the import from ("" if the DAT was imported standalone,
// i.e. not as part of a directory walk); explicit is the caller-supplied
// category override, if any.
func Derive(sourcePath, importRoot, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if dir, ok := directoryCategory(sourcePath, importRoot); ok {
		return dir
	}
	if cat, ok := tosecCategory(sourcePath); ok {
		return cat
	}
	return ""
}

func directoryCategory(sourcePath, importRoot string) (string, bool) {
	if importRoot == "" {
		return "", false
	}
	rel, err := filepath.Rel(importRoot, filepath.Dir(sourcePath))
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return rel, true
}

func tosecCategory(sourcePath string) (string, bool) {
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	m := tosecPattern.FindStringSubmatch(base)
	if m == nil {
		return "", false
	}
	prefix, section, subsection := m[1], m[2], m[3]

	manufacturer, model, ok := splitKnownPrefix(prefix)
	if !ok {
		return "", false
	}

	parts := []string{manufacturer, model, section}
	if subsection != "" {
		parts = append(parts, subsection)
	}
	return strings.Join(parts, "/"), true
}

// splitKnownPrefix finds the (manufacturer, model) pair in tosecTable
// whose concatenation ("<manufacturer> <model>") exactly matches prefix.
// Exact case-sensitive match only — no fuzzy matching, per spec §4.4.
func splitKnownPrefix(prefix string) (manufacturer, model string, ok bool) {
	for key, canonical := range tosecTable {
		if key.manufacturer+" "+key.model == prefix {
			parts := strings.SplitN(canonical, "/", 2)
			if len(parts) == 2 {
				return parts[0], parts[1], true
			}
		}
	}
	return "", "", false
}
