// SPDX-License-Identifier: MIT
package score

import (
	"bufio"
	"io"
	"strings"
)

// Entry is one dataset line: a file base name and its annotated key.
type Entry struct {
	Base string
	Key  string
}

// ReadList parses a dataset listing with one "<base>|<key>" pair per
// line. Lines without a separator are skipped, so headers and blank
// lines need no special casing.
func ReadList(r io.Reader) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		base, key, found := strings.Cut(line, "|")
		if !found {
			continue
		}
		entries = append(entries, Entry{
			Base: strings.TrimSpace(base),
			Key:  strings.TrimSpace(key),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
