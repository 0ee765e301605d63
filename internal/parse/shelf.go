package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	sectionRe = regexp.MustCompile(`(?i)\bsection\s+([A-Z0-9]+)\b`)
	aisleRe   = regexp.MustCompile(`(?i)\baisle\s+(\d+)\b`)
	shelfRe   = regexp.MustCompile(`(?i)\bshelf\s+(\d+)\b`)
	// Compact call-desk notation such as "B-12-3" or "C 4".
	compactRe = regexp.MustCompile(`(?i)^([A-Z]{1,3})[\s-]*(\d+)(?:[\s-]+(\d+))?$`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// ShelfLocation holds the structured data parsed from a book's shelf location.
type ShelfLocation struct {
	Section string
	Aisle   int
	Shelf   int
}

// ParseShelfLocation extracts section, aisle and shelf from a free-text location such as
// "Section A, Aisle 2" or "B-12-3". Unknown parts stay zero.
func ParseShelfLocation(raw string) (ShelfLocation, error) {
	s := strings.TrimSpace(spaceRe.ReplaceAllString(raw, " "))
	if s == "" {
		return ShelfLocation{}, fmt.Errorf("empty shelf location")
	}

	if m := compactRe.FindStringSubmatch(s); m != nil {
		loc := ShelfLocation{Section: strings.ToUpper(m[1])}
		loc.Aisle, _ = strconv.Atoi(m[2])
		if m[3] != "" {
			loc.Shelf, _ = strconv.Atoi(m[3])
		}
		return loc, nil
	}

	var loc ShelfLocation
	if m := sectionRe.FindStringSubmatch(s); m != nil {
		loc.Section = strings.ToUpper(m[1])
	}
	if m := aisleRe.FindStringSubmatch(s); m != nil {
		loc.Aisle, _ = strconv.Atoi(m[1])
	}
	if m := shelfRe.FindStringSubmatch(s); m != nil {
		loc.Shelf, _ = strconv.Atoi(m[1])
	}

	if loc.Section == "" && loc.Aisle == 0 {
		return ShelfLocation{}, fmt.Errorf("unable to parse shelf location: %q", raw)
	}
	return loc, nil
}
