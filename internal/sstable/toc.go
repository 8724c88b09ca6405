package sstable

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// EncodeTOC renders a TOC.txt body: one component file name per line,
// sorted for determinism. TOC.txt is the last file a writer renames into
// place: its presence is the visibility barrier a reader checks before
// trusting the rest of a generation's files.
func EncodeTOC(d Descriptor, components []Component) []byte {
	names := make([]string, len(components))
	for i, c := range components {
		names[i] = string(d.FileName(c))
	}
	sort.Strings(names)
	var buf bytes.Buffer
	for _, n := range names {
		buf.WriteString(n)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ParseTOC parses a TOC.txt body into the component names it lists.
func ParseTOC(raw []byte) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("sstable: parse TOC.txt: %w", err)
	}
	return names, nil
}

// VerifyTOC checks that every component name TOC.txt lists is present in
// the provided file listing: a generation is valid only if every file
// TOC.txt names exists.
func VerifyTOC(tocNames []string, presentFiles map[string]bool) error {
	for _, name := range tocNames {
		if !presentFiles[name] {
			return fmt.Errorf("sstable: TOC.txt references missing file %q", name)
		}
	}
	return nil
}
