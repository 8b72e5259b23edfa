// Package manifest reads the CSV inventory of publications to ingest.
package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spacebio/knowledge-engine/backend/internal/util"
	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
)

// columnAliases maps accepted header names onto document fields.
var columnAliases = map[string]string{
	"title":               "title",
	"source_url":          "source_url",
	"url":                 "source_url",
	"link":                "source_url",
	"doi":                 "doi",
	"local_path":          "local_path",
	"pdf_path":            "local_path",
	"processed_text_path": "text_path",
	"text_path":           "text_path",
}

var ErrNoTitleColumn = errors.New("manifest has no title column")

// Read parses a manifest. The header row is required; unknown columns are
// ignored. Rows without a title are skipped.
func Read(r io.Reader) ([]common.Document, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoTitleColumn
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest header: %w", err)
	}

	cols := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if field, ok := columnAliases[name]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["title"]; !ok {
		return nil, ErrNoTitleColumn
	}

	get := func(rec []string, field string) string {
		i, ok := cols[field]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var docs []common.Document
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			logger.Warn("[Manifest] Skipping malformed row", "line", line, "err", err)
			continue
		}
		title := util.CollapseWhitespace(get(rec, "title"))
		if title == "" {
			logger.Warn("[Manifest] Skipping row without title", "line", line)
			continue
		}
		docs = append(docs, common.Document{
			Title:     title,
			SourceURL: get(rec, "source_url"),
			DOI:       get(rec, "doi"),
			LocalPath: get(rec, "local_path"),
			TextPath:  get(rec, "text_path"),
		})
	}
	return docs, nil
}

func ReadFile(path string) ([]common.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Duplicate is a title listed more than once.
type Duplicate struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

// DuplicateTitles reports titles that appear more than once, compared case
// insensitively, sorted by count then title.
func DuplicateTitles(docs []common.Document) []Duplicate {
	counts := make(map[string]int)
	display := make(map[string]string)
	for _, d := range docs {
		k := strings.ToLower(d.Title)
		counts[k]++
		if _, ok := display[k]; !ok {
			display[k] = d.Title
		}
	}
	var out []Duplicate
	for k, n := range counts {
		if n > 1 {
			out = append(out, Duplicate{Title: display[k], Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Title < out[j].Title
	})
	return out
}

// MissingText returns documents whose extracted text file is absent.
// Documents without a text path are reported too.
func MissingText(docs []common.Document, exists func(path string) bool) []common.Document {
	var out []common.Document
	for _, d := range docs {
		if d.TextPath == "" || !exists(d.TextPath) {
			out = append(out, d)
		}
	}
	return out
}
