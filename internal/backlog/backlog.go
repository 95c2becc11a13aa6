// Package backlog loads the ordered list of work-item ids for a run.
// The list is read once at startup and treated as read-only afterwards.
package backlog

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Load reads a newline-delimited id list. Blank lines and lines starting
// with '#' are skipped. Order is preserved; duplicates keep their first
// position only.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backlog: %w", err)
	}
	defer f.Close()

	seen := make(map[string]bool)
	var ids []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read backlog: %w", err)
	}

	return ids, nil
}
