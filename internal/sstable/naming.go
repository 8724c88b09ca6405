// Package sstable implements the on-disk component set shared by every
// generation of a table: file naming, the TOC.txt manifest, the
// Digest.crc32 checksum sidecar, and the Statistics.db component
//.
package sstable

import (
	"fmt"
	"strconv"
	"strings"
)

// Format identifies which partition-index variant a generation uses: BIG
// (Index.db/Summary.db) or BTI (Partitions.db). This engine stores each
// partition's full body inline in Data.db rather than maintaining a
// separate promoted per-row index, so a BTI generation here never
// produces Rows.db even though Cassandra's own BTI writer can.
type Format string

const (
	FormatBig Format = "big"
	FormatBTI Format = "bti"
)

// Component names a single file within a generation's component set, as
// they appear after the `{version}-{generation}-{format}-` prefix.
type Component string

const (
	ComponentData            Component = "Data.db"
	ComponentIndex           Component = "Index.db"
	ComponentSummary         Component = "Summary.db"
	ComponentPartitions      Component = "Partitions.db"
	ComponentRows            Component = "Rows.db"
	ComponentFilter          Component = "Filter.db"
	ComponentStatistics      Component = "Statistics.db"
	ComponentCompressionInfo Component = "CompressionInfo.db"
	ComponentDigest          Component = "Digest.crc32"
	ComponentTOC             Component = "TOC.txt"
)

// Descriptor identifies one generation of one table on disk: the version
// tag, generation number, index format, and base directory its component
// files live in.
type Descriptor struct {
	Directory  string
	Version    string // e.g. "nb"
	Generation int64
	Format     Format
}

// FileName returns the on-disk file name for a component of this
// generation, e.g. "nb-3-big-Data.db".
func (d Descriptor) FileName(c Component) string {
	return fmt.Sprintf("%s-%d-%s-%s", d.Version, d.Generation, d.Format, c)
}

// TempFileName returns the name a writer stages a component under before
// the atomic rename that publishes it (writer atomicity):
// the same name with a ".tmp" suffix.
func (d Descriptor) TempFileName(c Component) string {
	return d.FileName(c) + ".tmp"
}

// Path joins Directory and FileName(c).
func (d Descriptor) Path(c Component) string {
	return d.Directory + "/" + d.FileName(c)
}

// ParseFileName parses a component file name of the form
// "{version}-{generation}-{format}-{component}" back into its generation
// number, format, and component, given the directory it was found in.
func ParseFileName(directory, name string) (Descriptor, Component, error) {
	parts := strings.SplitN(name, "-", 4)
	if len(parts) != 4 {
		return Descriptor{}, "", fmt.Errorf("sstable: malformed component file name %q", name)
	}
	gen, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Descriptor{}, "", fmt.Errorf("sstable: malformed generation in %q: %w", name, err)
	}
	format := Format(parts[2])
	if format != FormatBig && format != FormatBTI {
		return Descriptor{}, "", fmt.Errorf("sstable: unknown format tag %q in %q", parts[2], name)
	}
	d := Descriptor{Directory: directory, Version: parts[0], Generation: gen, Format: format}
	return d, Component(parts[3]), nil
}

// ComponentsForFormat lists every component a complete generation of the
// given format carries, in the order the writer finalizes them (TOC.txt
// always last).
func ComponentsForFormat(f Format, compressed bool) []Component {
	var comps []Component
	switch f {
	case FormatBig:
		comps = []Component{ComponentData, ComponentIndex, ComponentSummary, ComponentFilter, ComponentStatistics}
	case FormatBTI:
		comps = []Component{ComponentData, ComponentPartitions, ComponentFilter, ComponentStatistics}
	}
	if compressed {
		comps = append(comps, ComponentCompressionInfo)
	}
	comps = append(comps, ComponentDigest, ComponentTOC)
	return comps
}
