package openlibrary

import (
	"bytes"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// ErrNotEdition is returned by ParseDumpLine for records of other types.
var ErrNotEdition = errors.New("not an edition record")

// Edition is one record of an Open Library editions dump.
type Edition struct {
	Key            string
	Title          string
	Subtitle       string
	Authors        []string
	ByStatement    string
	Publishers     []string
	PublishDate    string
	PublishYear    string
	NumberOfPages  int
	PhysicalFormat string
	Languages      []string
	Description    string
	CoverID        int64
	ISBN13         []string
	ISBN10         []string
}

// ISBN returns the first ISBN-13, falling back to the first ISBN-10.
func (e Edition) ISBN() string {
	for _, group := range [][]string{e.ISBN13, e.ISBN10} {
		for _, v := range group {
			if v = normalizeISBN(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// normalizeISBN strips hyphens and spaces.
func normalizeISBN(s string) string {
	b := make([]byte, 0, len(s))
	for i := range len(s) {
		if c := s[i]; c != '-' && c != ' ' {
			b = append(b, c)
		}
	}
	return string(b)
}

// ParseDumpLine reads one line of an editions dump. Lines hold five
// tab-separated columns: type, key, revision, last modified and the JSON
// record.
func ParseDumpLine(line []byte) (Edition, error) {
	cols := bytes.SplitN(line, []byte{'\t'}, 5)
	if len(cols) != 5 {
		return Edition{}, errors.Errorf("expected 5 columns, got %d", len(cols))
	}
	if string(cols[0]) != "/type/edition" {
		return Edition{}, ErrNotEdition
	}

	var r record
	if err := readRecord(jx.DecodeBytes(cols[4]), &r); err != nil {
		return Edition{}, errors.Wrap(err, "decode edition")
	}
	if r.Key == "" {
		r.Key = string(cols[1])
	}
	return Edition{
		Key:            r.Key,
		Title:          r.Title,
		Subtitle:       r.Subtitle,
		Authors:        r.Authors,
		ByStatement:    r.ByStatement,
		Publishers:     r.Publishers,
		PublishDate:    r.PublishDate,
		PublishYear:    r.publishYear(),
		NumberOfPages:  r.NumberOfPages,
		PhysicalFormat: r.PhysicalFormat,
		Languages:      r.Languages,
		Description:    r.Description,
		CoverID:        r.coverID(),
		ISBN13:         r.ISBN13,
		ISBN10:         r.ISBN10,
	}, nil
}
