// Package report parses PALADIN alignment outputs: raw SAM entries and the
// PALADIN UniProt report. Parsed files are memoized per (file, filter) key so
// plugins sharing an input never re-read it.
package report

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// SAM column indices.
const (
	samFieldQName = 0
	samFieldFlag  = 1
	samFieldRName = 2
	samFieldPos   = 3
	samFieldMapQ  = 4
	samFieldCigar = 5
	samFieldRNext = 6
	samFieldPNext = 7
	samFieldTLen  = 8
	samFieldSeq   = 9
	samFieldQual  = 10
)

const flagUnmapped = 0x4

// PALADIN prefixes read names with the best-scoring frame, which may change
// between alignments; it is split off the query name during parsing.
var frameHeaderRe = regexp.MustCompile(`(.*?:.*?:.*?:)(.*)`)

// SamEntry is one parsed SAM alignment record.
type SamEntry struct {
	Query     string
	Flag      int
	Reference string
	Pos       int
	MapQual   int
	Cigar     string
	NextRef   string
	NextPos   string
	Length    int
	Sequence  string
	ReadQual  int
	Frame     string
}

// IsMapped reports whether the read aligned to a reference.
func (e *SamEntry) IsMapped() bool {
	return e.Flag&flagUnmapped == 0
}

// SamKey identifies one hit of one read. A read with chimeric or non-linear
// alignments yields multiple hits with increasing indices.
type SamKey struct {
	Read string
	Hit  int
}

// ParseSam reads a SAM file, skipping headers and malformed lines, and
// filters for the requested minimum mapping quality. A quality of -1
// disables filtering and retains unmapped reads.
func ParseSam(filename string, quality int) (map[SamKey]*SamEntry, error) {
	f, err := os.Open(filename) //nolint:gosec // G304: user-supplied report path
	if err != nil {
		return nil, fmt.Errorf("opening SAM file: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries := make(map[SamKey]*SamEntry)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "@") {
			continue
		}
		fields := strings.Split(strings.TrimRight(line, "\n"), "\t")
		if len(fields) < 11 {
			continue
		}

		if quality != -1 {
			if fields[samFieldRName] == "*" {
				continue
			}
			if mapq, _ := strconv.Atoi(fields[samFieldMapQ]); mapq < quality {
				continue
			}
		}

		match := frameHeaderRe.FindStringSubmatch(fields[samFieldQName])
		if match == nil {
			continue
		}

		entry := &SamEntry{
			Query: match[2],
			Flag:  samInt(fields[samFieldFlag]),
		}
		if entry.IsMapped() {
			entry.Reference = fields[samFieldRName]
			entry.Pos = samInt(fields[samFieldPos])
			entry.MapQual = samInt(fields[samFieldMapQ])
			entry.Cigar = fields[samFieldCigar]
			entry.NextRef = fields[samFieldRNext]
			entry.NextPos = fields[samFieldPNext]
			entry.Length = samInt(fields[samFieldTLen])
			entry.Sequence = fields[samFieldSeq]
			entry.ReadQual = samInt(fields[samFieldQual])
			entry.Frame = match[1]
		}

		key := SamKey{Read: match[2]}
		for {
			if _, taken := entries[key]; !taken {
				break
			}
			key.Hit++
		}
		entries[key] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading SAM file: %w", err)
	}
	return entries, nil
}

// samInt parses a SAM numeric field, treating non-digit values as zero.
func samInt(val string) int {
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
