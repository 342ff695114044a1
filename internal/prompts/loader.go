// Package prompts holds the completion prompts of the handoff pipeline.
//
// Two prompt sets are embedded as JSON objects of key to template:
// Continuity (extraction, compression, primer, deep context and repair) and
// MapReduce (slice mapping and the reduce passes of the fallback variant).
// Templates use {{.Name}} placeholders filled by Format.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// Prompt set file names
const (
	Continuity = "continuity.json"
	MapReduce  = "mapreduce.json"
)

//go:embed *.json
var files embed.FS

var placeholderRe = regexp.MustCompile(`\{\{\.(\w+)\}\}`)

var (
	setsMu sync.RWMutex
	sets   = map[string]map[string]string{}
)

// Get returns the template stored under key in the named set
func Get(set, key string) (string, error) {
	templates, err := load(set)
	if err != nil {
		return "", err
	}
	tmpl, ok := templates[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, set)
	}
	return tmpl, nil
}

// MustGet is Get for prompts the pipeline cannot run without
func MustGet(set, key string) string {
	tmpl, err := Get(set, key)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return tmpl
}

// Format fills {{.Name}} placeholders from vars in one pass, so values that
// themselves look like placeholders are inserted verbatim. Placeholders
// without a value are left in place.
func Format(tmpl string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		if v, ok := vars[placeholderRe.FindStringSubmatch(m)[1]]; ok {
			return v
		}
		return m
	})
}

// List returns the keys of a set, sorted
func List(set string) ([]string, error) {
	templates, err := load(set)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(templates))
	for k := range templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// ClearCache drops parsed sets so the next Get parses them again
func ClearCache() {
	setsMu.Lock()
	sets = map[string]map[string]string{}
	setsMu.Unlock()
}

func load(set string) (map[string]string, error) {
	setsMu.RLock()
	templates, ok := sets[set]
	setsMu.RUnlock()
	if ok {
		return templates, nil
	}

	data, err := files.ReadFile(set)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", set, err)
	}
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", set, err)
	}

	setsMu.Lock()
	sets[set] = templates
	setsMu.Unlock()
	return templates, nil
}
