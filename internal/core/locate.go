package core

import (
	"regexp"
)

// Table file suffixes inside a run archive.
const (
	accAllSuffix = ".acc-all.csv"
	plainSuffix  = ".csv"
)

// tablePatterns returns the accumulator-all and plain patterns for table name.
// A match may sit at the archive root or under any directory.
func tablePatterns(table string) (accAll, plain *regexp.Regexp) {
	name := regexp.QuoteMeta(table)
	accAll = regexp.MustCompile(`(?:^|/)` + name + regexp.QuoteMeta(accAllSuffix) + `$`)
	plain = regexp.MustCompile(`(?:^|/)` + name + regexp.QuoteMeta(plainSuffix) + `$`)
	return accAll, plain
}

// TableCandidate is an archive entry matching a table name.
type TableCandidate struct {
	Entry  string
	AccAll bool // Matched the .acc-all.csv pattern
}

// FindTableCandidates returns every entry of names matching either pattern
// for table, in listing order.
func FindTableCandidates(names []string, table string) []TableCandidate {
	accAll, plain := tablePatterns(table)

	var out []TableCandidate
	for _, name := range names {
		switch {
		case accAll.MatchString(name):
			out = append(out, TableCandidate{Entry: name, AccAll: true})
		case plain.MatchString(name):
			out = append(out, TableCandidate{Entry: name})
		}
	}
	return out
}

// SelectTable applies the tie-break to a non-empty candidate list: the first
// accumulator-all match in listing order wins, otherwise the first match.
func SelectTable(candidates []TableCandidate) TableCandidate {
	for _, c := range candidates {
		if c.AccAll {
			return c
		}
	}
	return candidates[0]
}

// LocateTable finds the entry holding the source table of entry.
// Zero matches is a NoTableMatchError.
func LocateTable(names []string, entry MappingEntry) (TableCandidate, []TableCandidate, error) {
	candidates := FindTableCandidates(names, entry.FromName)
	if len(candidates) == 0 {
		return TableCandidate{}, nil, &NoTableMatchError{Table: entry.FromName, Parameter: entry.ParameterName}
	}
	return SelectTable(candidates), candidates, nil
}
