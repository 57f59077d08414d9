package report

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// PALADIN UniProt report column indices.
const (
	upFieldCount     = 0
	upFieldAbundance = 1
	upFieldQualAvg   = 2
	upFieldQualMax   = 3
	upFieldKB        = 4
	upFieldID        = 5
	upFieldSpecies   = 6
	upFieldProtein   = 7
	upFieldOntology  = 11
)

// EntryType classifies how a report row's KB identifier was resolved.
type EntryType int

const (
	// TypeUnknown rows carry no UniProt annotation.
	TypeUnknown EntryType = iota
	// TypeUniprotExact rows resolved to a specific UniProt species mnemonic.
	TypeUniprotExact
	// TypeUniprotGroup rows resolved to a UniProt virtual species group.
	TypeUniprotGroup
	// TypeCustom rows matched a caller-supplied species pattern.
	TypeCustom
)

// UniprotEntry is one aggregated row of a PALADIN UniProt report.
type UniprotEntry struct {
	Type        EntryType
	ID          string
	KB          string
	Count       int
	Abundance   float64
	QualityAvg  float64
	QualityMax  int
	SpeciesID   string
	SpeciesFull string
	Protein     string
	Ontology    []string
}

// ParseUniprot reads a PALADIN UniProt report, skipping the header row and
// filtering for the requested minimum max-quality. A non-empty pattern is
// applied to otherwise unannotated KB values to recover custom (non-UniProt)
// species identifiers; its first capture group is the species.
func ParseUniprot(filename string, quality int, pattern string) (map[string]*UniprotEntry, error) {
	var customRe *regexp.Regexp
	if pattern != "" {
		var err error
		customRe, err = regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling custom species pattern: %w", err)
		}
	}

	f, err := os.Open(filename) //nolint:gosec // G304: user-supplied report path
	if err != nil {
		return nil, fmt.Errorf("opening UniProt report: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries := make(map[string]*UniprotEntry)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) <= upFieldKB {
			continue
		}

		qualMax, _ := strconv.ParseFloat(fields[upFieldQualMax], 64)
		if qualMax < float64(quality) {
			continue
		}

		entry := &UniprotEntry{
			Type:        TypeUnknown,
			ID:          "Unknown",
			KB:          fields[upFieldKB],
			SpeciesID:   "Unknown",
			SpeciesFull: "Unknown",
			Protein:     "Unknown",
		}
		entry.Count, _ = strconv.Atoi(fields[upFieldCount])
		entry.Abundance, _ = strconv.ParseFloat(fields[upFieldAbundance], 64)
		entry.QualityAvg, _ = strconv.ParseFloat(fields[upFieldQualAvg], 64)
		entry.QualityMax = int(qualMax)

		if len(fields) > 10 {
			// Extra fields indicate a successful UniProt parse by PALADIN.
			if strings.Contains(entry.KB, "_9") {
				entry.Type = TypeUniprotGroup
			} else {
				entry.Type = TypeUniprotExact
			}
			if parts := strings.SplitN(entry.KB, "_", 2); len(parts) == 2 {
				entry.SpeciesID = parts[1]
			}
			entry.SpeciesFull = fields[upFieldSpecies]
			entry.ID = fields[upFieldID]
			entry.Protein = fields[upFieldProtein]
			for _, term := range strings.Split(fields[upFieldOntology], ";") {
				entry.Ontology = append(entry.Ontology, strings.TrimSpace(term))
			}
		} else if customRe != nil {
			if match := customRe.FindStringSubmatch(entry.KB); match != nil && len(match) > 1 {
				entry.Type = TypeCustom
				entry.SpeciesID = match[1]
				entry.SpeciesFull = match[1]
			}
		}

		entries[fields[upFieldKB]] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading UniProt report: %w", err)
	}
	return entries, nil
}
