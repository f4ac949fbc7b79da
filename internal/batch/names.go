// Package batch holds the helpers behind batch VM creation: name lists,
// YAML templates, CSV export and guest OS presets.
package batch

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseNames splits text into one name per line. Surrounding whitespace is
// trimmed and blank lines are dropped. Duplicates are kept: the backend
// decides what to do with them.
func ParseNames(text string) []string {
	var names []string
	for _, line := range strings.Split(text, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ReadNames reads names from r, one per line. Lines starting with # are
// comments.
func ReadNames(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		names = append(names, name)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading names: %w", err)
	}
	return names, nil
}

// ReadNamesFile reads names from path; "-" reads stdin.
func ReadNamesFile(path string, stdin io.Reader) ([]string, error) {
	if path == "-" {
		return ReadNames(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadNames(f)
}
