package openlibrary

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Doc is one search hit.
type Doc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	Authors          []string `json:"authors"`
	FirstPublishYear int      `json:"firstPublishYear,omitempty"`
	CoverID          int64    `json:"coverId,omitempty"`
	ISBNs            []string `json:"isbns"`
}

// SearchResult is the normalized answer of Search.
type SearchResult struct {
	NumFound int   `json:"numFound"`
	Docs     []Doc `json:"docs"`
}

// Details describes a single work or edition.
type Details struct {
	OLID        string   `json:"olid"`
	Title       string   `json:"title"`
	Author      string   `json:"author,omitempty"`
	PublishYear string   `json:"publishYear,omitempty"`
	CoverID     int64    `json:"coverId,omitempty"`
	Description string   `json:"description,omitempty"`
	ISBNs       []string `json:"isbns"`
}

// record holds the fields read from search docs, works and editions. Open
// Library is loose with types, so values of an unexpected kind are skipped.
type record struct {
	Key              string
	Title            string
	AuthorNames      []string
	Authors          []string
	FirstPublishYear int
	PublishDate      string
	Covers           []int64
	CoverI           int64
	Description      string
	ISBN             []string
	ISBN13           []string
	ISBN10           []string
	LCCN             []string
	OCLC             []string

	// Edition-only fields read from data dumps.
	Subtitle       string
	ByStatement    string
	PhysicalFormat string
	Publishers     []string
	Languages      []string
	NumberOfPages  int
}

func decodeSearch(data []byte) (*SearchResult, error) {
	res := &SearchResult{Docs: []Doc{}}
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "numFound", "num_found":
			return readInt(d, &res.NumFound)
		case "docs":
			return d.Arr(func(d *jx.Decoder) error {
				var r record
				if err := readRecord(d, &r); err != nil {
					return err
				}
				res.Docs = append(res.Docs, r.doc())
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode search")
	}
	return res, nil
}

func decodeRecord(data []byte) (*record, error) {
	var r record
	if err := readRecord(jx.DecodeBytes(data), &r); err != nil {
		return nil, errors.Wrap(err, "decode record")
	}
	return &r, nil
}

// decodeEditions returns at most limit entries of an editions listing.
func decodeEditions(data []byte, limit int) ([]record, error) {
	var out []record
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "entries" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			if len(out) >= limit {
				return d.Skip()
			}
			var r record
			if err := readRecord(d, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode editions")
	}
	return out, nil
}

func readRecord(d *jx.Decoder, r *record) error {
	if d.Next() != jx.Object {
		return d.Skip()
	}
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "key":
			return readString(d, &r.Key)
		case "title":
			return readString(d, &r.Title)
		case "author_name":
			return readStrings(d, &r.AuthorNames)
		case "authors":
			return readAuthors(d, &r.Authors)
		case "first_publish_year":
			return readInt(d, &r.FirstPublishYear)
		case "publish_date":
			return readString(d, &r.PublishDate)
		case "covers":
			return readInts(d, &r.Covers)
		case "cover_i":
			return readInt64(d, &r.CoverI)
		case "description":
			return readText(d, &r.Description)
		case "isbn":
			return readStrings(d, &r.ISBN)
		case "isbn_13":
			return readStrings(d, &r.ISBN13)
		case "isbn_10":
			return readStrings(d, &r.ISBN10)
		case "lccn":
			return readStrings(d, &r.LCCN)
		case "oclc_numbers", "oclc_id":
			return readStrings(d, &r.OCLC)
		case "subtitle":
			return readString(d, &r.Subtitle)
		case "by_statement":
			return readString(d, &r.ByStatement)
		case "physical_format":
			return readString(d, &r.PhysicalFormat)
		case "publishers":
			return readStrings(d, &r.Publishers)
		case "languages":
			return readKeys(d, &r.Languages)
		case "number_of_pages":
			return readInt(d, &r.NumberOfPages)
		default:
			return d.Skip()
		}
	})
}

// identifiers returns the record's ISBNs followed by LCCN and OCLC numbers,
// without duplicates or blanks.
func (r *record) identifiers() []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, group := range [][]string{r.ISBN13, r.ISBN10, r.ISBN, r.LCCN, r.OCLC} {
		for _, v := range group {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// merge overlays the non-empty fields of an edition onto r.
func (r *record) merge(e record) {
	if e.Title != "" {
		r.Title = e.Title
	}
	if len(e.Authors) > 0 {
		r.Authors = e.Authors
	}
	if e.PublishDate != "" {
		r.PublishDate = e.PublishDate
	}
	if len(e.Covers) > 0 {
		r.Covers = e.Covers
	}
	if e.Description != "" {
		r.Description = e.Description
	}
	r.ISBN13, r.ISBN10, r.LCCN, r.OCLC = e.ISBN13, e.ISBN10, e.LCCN, e.OCLC
}

func (r *record) author() string {
	if len(r.AuthorNames) > 0 {
		return strings.Join(r.AuthorNames, ", ")
	}
	return strings.Join(r.Authors, ", ")
}

func (r *record) coverID() int64 {
	for _, c := range r.Covers {
		if c > 0 {
			return c
		}
	}
	if r.CoverI > 0 {
		return r.CoverI
	}
	return 0
}

func (r *record) publishYear() string {
	if r.FirstPublishYear > 0 {
		return strconv.Itoa(r.FirstPublishYear)
	}
	// publish_date is free text such as "2004" or "March 2004".
	fields := strings.Fields(r.PublishDate)
	for i := len(fields) - 1; i >= 0; i-- {
		f := strings.Trim(fields[i], ",.")
		if len(f) == 4 {
			if _, err := strconv.Atoi(f); err == nil {
				return f
			}
		}
	}
	return ""
}

func (r *record) doc() Doc {
	authors := r.AuthorNames
	if len(authors) == 0 {
		authors = r.Authors
	}
	if authors == nil {
		authors = []string{}
	}
	return Doc{
		Key:              r.Key,
		Title:            r.Title,
		Authors:          authors,
		FirstPublishYear: r.FirstPublishYear,
		CoverID:          r.coverID(),
		ISBNs:            r.identifiers(),
	}
}

func (r *record) details(olid string) *Details {
	return &Details{
		OLID:        olid,
		Title:       r.Title,
		Author:      r.author(),
		PublishYear: r.publishYear(),
		CoverID:     r.coverID(),
		Description: r.Description,
		ISBNs:       r.identifiers(),
	}
}

func readString(d *jx.Decoder, dst *string) error {
	if d.Next() != jx.String {
		return d.Skip()
	}
	s, err := d.Str()
	if err != nil {
		return err
	}
	*dst = s
	return nil
}

func readStrings(d *jx.Decoder, dst *[]string) error {
	if d.Next() != jx.Array {
		return d.Skip()
	}
	return d.Arr(func(d *jx.Decoder) error {
		var s string
		if err := readString(d, &s); err != nil {
			return err
		}
		if s != "" {
			*dst = append(*dst, s)
		}
		return nil
	})
}

func readInt(d *jx.Decoder, dst *int) error {
	if d.Next() != jx.Number {
		return d.Skip()
	}
	v, err := d.Int()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func readInt64(d *jx.Decoder, dst *int64) error {
	if d.Next() != jx.Number {
		return d.Skip()
	}
	v, err := d.Int64()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func readInts(d *jx.Decoder, dst *[]int64) error {
	if d.Next() != jx.Array {
		return d.Skip()
	}
	return d.Arr(func(d *jx.Decoder) error {
		var v int64
		if err := readInt64(d, &v); err != nil {
			return err
		}
		*dst = append(*dst, v)
		return nil
	})
}

// readAuthors collects names from [{"name": ...}] author lists. Works list
// author references without names; those contribute nothing.
func readAuthors(d *jx.Decoder, dst *[]string) error {
	if d.Next() != jx.Array {
		return d.Skip()
	}
	return d.Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.Object {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "name" {
				return d.Skip()
			}
			var s string
			if err := readString(d, &s); err != nil {
				return err
			}
			if s != "" {
				*dst = append(*dst, s)
			}
			return nil
		})
	})
}

// readKeys collects the last path segment of [{"key": "/languages/eng"}]
// reference lists.
func readKeys(d *jx.Decoder, dst *[]string) error {
	if d.Next() != jx.Array {
		return d.Skip()
	}
	return d.Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.Object {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "key" {
				return d.Skip()
			}
			var s string
			if err := readString(d, &s); err != nil {
				return err
			}
			if i := strings.LastIndexByte(s, '/'); i >= 0 {
				s = s[i+1:]
			}
			if s != "" {
				*dst = append(*dst, s)
			}
			return nil
		})
	})
}

// readText reads either a plain string or a {"type": ..., "value": ...}
// text object.
func readText(d *jx.Decoder, dst *string) error {
	switch d.Next() {
	case jx.String:
		return readString(d, dst)
	case jx.Object:
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "value" {
				return d.Skip()
			}
			return readString(d, dst)
		})
	default:
		return d.Skip()
	}
}
