package pathutils

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// RootSanitizer normalizes the directories a scan starts from.
type RootSanitizer struct {
	homeExpander *HomeExpander
}

// NewRootSanitizer constructs a RootSanitizer; a nil expander uses the operating system lookup.
func NewRootSanitizer(homeExpander *HomeExpander) *RootSanitizer {
	if homeExpander == nil {
		homeExpander = NewHomeExpander()
	}
	return &RootSanitizer{homeExpander: homeExpander}
}

// Sanitize trims blanks, expands "~", makes every root absolute, drops duplicates, and
// drops roots nested inside another root. Surviving roots keep their input order.
func (sanitizer *RootSanitizer) Sanitize(candidateRoots []string) []string {
	absoluteRoots := make([]string, 0, len(candidateRoots))
	for _, candidateRoot := range candidateRoots {
		trimmedRoot := strings.TrimSpace(candidateRoot)
		if len(trimmedRoot) == 0 {
			continue
		}
		absoluteRoots = append(absoluteRoots, absolutePath(sanitizer.homeExpander.Expand(trimmedRoot)))
	}
	if len(absoluteRoots) == 0 {
		return nil
	}
	return pruneNestedRoots(absoluteRoots)
}

func pruneNestedRoots(roots []string) []string {
	shortestFirst := make([]int, len(roots))
	for index := range roots {
		shortestFirst[index] = index
	}
	sort.SliceStable(shortestFirst, func(first int, second int) bool {
		return len(roots[shortestFirst[first]]) < len(roots[shortestFirst[second]])
	})

	keptIndexes := make([]int, 0, len(roots))
	for _, candidateIndex := range shortestFirst {
		covered := false
		for _, keptIndex := range keptIndexes {
			if containsPath(roots[keptIndex], roots[candidateIndex]) {
				covered = true
				break
			}
		}
		if !covered {
			keptIndexes = append(keptIndexes, candidateIndex)
		}
	}
	sort.Ints(keptIndexes)

	pruned := make([]string, 0, len(keptIndexes))
	for _, keptIndex := range keptIndexes {
		pruned = append(pruned, roots[keptIndex])
	}
	return pruned
}

func absolutePath(path string) string {
	resolvedPath, resolveError := filepath.Abs(path)
	if resolveError != nil {
		return filepath.Clean(path)
	}
	return resolvedPath
}

// containsPath reports whether candidate equals parent or lies beneath it.
func containsPath(parent string, candidate string) bool {
	if runtime.GOOS == "windows" {
		parent = strings.ToLower(parent)
		candidate = strings.ToLower(candidate)
	}
	if candidate == parent {
		return true
	}
	if !strings.HasSuffix(parent, string(os.PathSeparator)) {
		parent += string(os.PathSeparator)
	}
	return strings.HasPrefix(candidate, parent)
}
