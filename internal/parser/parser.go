// Package parser turns raw tabular exports into typed marketing records.
package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Veraticus/tally/internal/model"
)

// ParseError reports input whose structure cannot be parsed at all: no
// header row, a missing required column, or unreadable delimited text.
type ParseError struct {
	File    string
	Column  string
	Message string
	Line    int
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString(e.File)
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d", e.Line)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " (column %q)", e.Column)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// Classifier picks the schema kind for a file label.
type Classifier func(label string) Kind

// labelKinds is checked in order against the normalized label.
var labelKinds = []struct {
	substr string
	kind   Kind
}{
	{"sessions_daily", KindSessions},
	{"events_daily", KindEvents},
	{"conversions_daily", KindConversions},
	{"campaign_catalog", KindCampaigns},
	{"benchmarks", KindBenchmarks},
}

// DefaultClassifier matches well-known substrings of the file label.
func DefaultClassifier(label string) Kind {
	normalized := strings.ToLower(label)
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	for _, lk := range labelKinds {
		if strings.Contains(normalized, lk.substr) {
			return lk.kind
		}
	}
	return KindGeneric
}

// Option configures a Parser.
type Option func(*Parser)

// WithClassifier replaces the label classifier.
func WithClassifier(c Classifier) Option {
	return func(p *Parser) {
		if c != nil {
			p.classify = c
		}
	}
}

// WithSchema registers or replaces the schema for schema.Kind.
func WithSchema(schema Schema) Option {
	return func(p *Parser) {
		if _, exists := p.schemas[schema.Kind]; !exists {
			p.order = append(p.order, schema.Kind)
		}
		p.schemas[schema.Kind] = schema
	}
}

// Parser holds the classifier and schemas. It is immutable after
// construction and safe for concurrent use.
type Parser struct {
	classify Classifier
	schemas  map[Kind]Schema
	order    []Kind
}

// NewParser builds a parser with the default schemas and classifier.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		classify: DefaultClassifier,
		schemas:  make(map[Kind]Schema),
	}
	for _, s := range DefaultSchemas() {
		p.schemas[s.Kind] = s
		p.order = append(p.order, s.Kind)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// File is the result of parsing one labeled input.
type File struct {
	// Generic holds coerced rows when no schema matched.
	Generic []map[string]Value
	Label   string
	Kind    Kind
	Records model.RecordSet
	// Sniffed is true when the label was unknown but the headers matched a schema.
	Sniffed bool
}

// Parse parses one labeled input with the default parser.
func Parse(label, text string) (*File, error) {
	return NewParser().Parse(label, text)
}

// ParseAll parses several labeled inputs with the default parser.
func ParseAll(files map[string]string) (*model.RecordSet, error) {
	return NewParser().ParseAll(files)
}

// ParseAll parses every input in label order and merges the results. The
// first structural error aborts the whole set.
func (p *Parser) ParseAll(files map[string]string) (*model.RecordSet, error) {
	labels := make([]string, 0, len(files))
	for label := range files {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	set := &model.RecordSet{}
	for _, label := range labels {
		f, err := p.Parse(label, files[label])
		if err != nil {
			return nil, err
		}
		set.Merge(f.Records)
	}
	return set, nil
}

// Parse classifies and parses one input.
func (p *Parser) Parse(label, text string) (*File, error) {
	header, rows, err := readTable(label, text)
	if err != nil {
		return nil, err
	}

	kind := p.classify(label)
	schema, known := p.schemas[kind]
	sniffed := false
	if !known {
		schema, known = p.sniff(header)
		sniffed = known
		kind = KindGeneric
	}

	f := &File{Label: label, Kind: kind, Sniffed: sniffed}
	if !known {
		f.Generic = genericRows(header, rows)
		f.Records.Files = []model.FileSummary{{Label: label, Kind: string(KindGeneric), Rows: len(f.Generic)}}
		f.Records.Unclassified = []string{label}
		return f, nil
	}

	columns, err := bindColumns(label, header, schema)
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		cells := make(map[string]string, len(columns))
		for i, field := range columns {
			if field == "" || i >= len(r.cells) {
				continue
			}
			cells[field] = strings.TrimSpace(r.cells[i])
		}
		row := &Row{
			cells:  cells,
			schema: &schema,
			issues: &f.Records.CellIssues,
			file:   label,
			line:   r.line,
		}
		schema.Build(row, &f.Records)
	}

	f.Records.Files = []model.FileSummary{{Label: label, Kind: string(schema.Kind), Rows: len(rows)}}
	if sniffed {
		f.Records.Unclassified = []string{label}
	}
	return f, nil
}

// sniff picks the schema whose required columns are all present, preferring
// the one that requires the most columns.
func (p *Parser) sniff(header []string) (Schema, bool) {
	var (
		best  Schema
		found bool
	)
	for _, kind := range p.order {
		schema := p.schemas[kind]
		present := make(map[string]bool, len(header))
		for _, h := range header {
			present[schema.canonical(h)] = true
		}
		matched := true
		for _, req := range schema.Required {
			if !present[req] {
				matched = false
				break
			}
		}
		if matched && (!found || len(schema.Required) > len(best.Required)) {
			best, found = schema, true
		}
	}
	return best, found
}

// bindColumns maps each header position to a canonical field, or "" when the
// column is not part of the schema.
func bindColumns(label string, header []string, schema Schema) ([]string, error) {
	known := make(map[string]bool, len(schema.Required)+len(schema.Optional))
	for _, f := range schema.Required {
		known[f] = true
	}
	for _, f := range schema.Optional {
		known[f] = true
	}

	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		field := schema.canonical(h)
		if !known[field] || seen[field] {
			continue
		}
		columns[i] = field
		seen[field] = true
	}

	for _, req := range schema.Required {
		if !seen[req] {
			return nil, &ParseError{
				File:    label,
				Line:    1,
				Column:  req,
				Message: fmt.Sprintf("required column %q is missing for %s", req, schema.Kind),
			}
		}
	}
	return columns, nil
}

type rawRow struct {
	cells []string
	line  int
}

// readTable reads the header and all non-empty rows.
func readTable(label, text string) ([]string, []rawRow, error) {
	text = strings.TrimPrefix(text, "\ufeff")

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = detectDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	// Leading-space trimming would swallow empty tab-separated cells.
	reader.TrimLeadingSpace = reader.Comma != '\t'

	var (
		header []string
		rows   []rawRow
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				line = csvErr.Line
			}
			return nil, nil, &ParseError{File: label, Line: line, Message: err.Error()}
		}
		if isBlank(record) {
			continue
		}
		if header == nil {
			header = make([]string, len(record))
			for i, h := range record {
				header[i] = normalizeHeader(h)
			}
			continue
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, rawRow{cells: record, line: line})
	}

	if header == nil {
		return nil, nil, &ParseError{File: label, Message: "missing header row"}
	}
	return header, rows, nil
}

// detectDelimiter picks comma, semicolon or tab by frequency on the first line.
func detectDelimiter(text string) rune {
	first := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		first = text[:i]
	}
	best, bestCount := ',', strings.Count(first, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(first, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(h)
	return strings.Trim(h, "_")
}

func isBlank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func genericRows(header []string, rows []rawRow) []map[string]Value {
	out := make([]map[string]Value, 0, len(rows))
	for _, r := range rows {
		m := make(map[string]Value, len(header))
		for i, h := range header {
			if h == "" || i >= len(r.cells) {
				continue
			}
			m[h] = Coerce(r.cells[i])
		}
		out = append(out, m)
	}
	return out
}
