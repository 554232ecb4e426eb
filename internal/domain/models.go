package domain

import (
	"sort"
	"strings"
	"time"
)

// Status values written to the Status column.
const (
	StatusWorking    = "Working"
	StatusNotWorking = "Not Working"
	StatusNoURL      = "No URL provided"
	StatusError      = "Error"
)

// Output columns appended to every row, in this order.
const (
	ColumnStatus    = "Status"
	ColumnError     = "Error"
	ColumnEmail     = "Email"
	ColumnPhone     = "Phone"
	ColumnLinkedIn  = "LinkedIn"
	ColumnInstagram = "Instagram"
)

// URLColumn is matched case-insensitively against the input headers.
const URLColumn = "website url"

// MissingURLError is the Error value for rows without a website URL.
const MissingURLError = "Missing URL in input"

// ValueSeparator joins multiple contacts in one cell.
const ValueSeparator = "; "

// OutputColumns lists the enrichment columns.
var OutputColumns = []string{ColumnStatus, ColumnError, ColumnEmail, ColumnPhone, ColumnLinkedIn, ColumnInstagram}

// Record is one input row. Columns keeps the header order of the source file
// and Cells the values in that same order, so repeated header names keep
// their own values. Values maps each column name to its first occurrence.
type Record struct {
	Index   int
	Columns []string
	Cells   []string
	Values  map[string]string
}

// NewRecord builds a record from a header row and the matching cells.
// Missing cells are stored as empty strings.
func NewRecord(index int, headers, cells []string) Record {
	r := Record{
		Index:   index,
		Columns: append([]string(nil), headers...),
		Cells:   make([]string, len(headers)),
		Values:  make(map[string]string, len(headers)),
	}
	copy(r.Cells, cells)
	for i, h := range headers {
		if _, dup := r.Values[h]; !dup {
			r.Values[h] = r.Cells[i]
		}
	}
	return r
}

// WebsiteURL returns the value of the first column named "website url"
// (case-insensitive). ok is false when no such column exists or it is blank.
func (r Record) WebsiteURL() (string, bool) {
	for i, col := range r.Columns {
		if strings.EqualFold(strings.TrimSpace(col), URLColumn) {
			v := strings.TrimSpace(r.cell(i))
			return v, v != ""
		}
	}
	return "", false
}

func (r Record) cell(i int) string {
	if i < len(r.Cells) {
		return r.Cells[i]
	}
	return r.Values[r.Columns[i]]
}

// HasURLColumn reports whether headers contain a "website url" column.
func HasURLColumn(headers []string) bool {
	for _, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), URLColumn) {
			return true
		}
	}
	return false
}

// OutputHeaders returns headers followed by every output column not already present.
func OutputHeaders(headers []string) []string {
	out := append([]string(nil), headers...)
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	for _, col := range OutputColumns {
		if !present[col] {
			out = append(out, col)
		}
	}
	return out
}

// StringSet is an unordered set of strings deduplicated by exact match.
type StringSet map[string]struct{}

// NewStringSet returns a set holding values.
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	s.Add(values...)
	return s
}

func (s StringSet) Add(values ...string) {
	for _, v := range values {
		s[v] = struct{}{}
	}
}

func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s StringSet) Union(other StringSet) {
	for v := range other {
		s[v] = struct{}{}
	}
}

// Sorted returns the members in lexical order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Join renders the set as a single cell value.
func (s StringSet) Join() string {
	return strings.Join(s.Sorted(), ValueSeparator)
}

// ContactBundle holds the contact details found on one site.
type ContactBundle struct {
	Emails    StringSet
	Phones    StringSet
	LinkedIn  StringSet
	Instagram StringSet
}

func NewContactBundle() ContactBundle {
	return ContactBundle{
		Emails:    StringSet{},
		Phones:    StringSet{},
		LinkedIn:  StringSet{},
		Instagram: StringSet{},
	}
}

// Merge adds every contact of other into b.
func (b ContactBundle) Merge(other ContactBundle) {
	b.Emails.Union(other.Emails)
	b.Phones.Union(other.Phones)
	b.LinkedIn.Union(other.LinkedIn)
	b.Instagram.Union(other.Instagram)
}

func (b ContactBundle) Empty() bool {
	return len(b.Emails) == 0 && len(b.Phones) == 0 && len(b.LinkedIn) == 0 && len(b.Instagram) == 0
}

// CrawlResult is the accumulated outcome of one site crawl.
type CrawlResult struct {
	Contacts     ContactBundle
	PagesVisited int
}

func NewCrawlResult() *CrawlResult {
	return &CrawlResult{Contacts: NewContactBundle()}
}

// Enrichment holds the six values appended to a row.
type Enrichment struct {
	Status    string `json:"Status"`
	Error     string `json:"Error"`
	Email     string `json:"Email"`
	Phone     string `json:"Phone"`
	LinkedIn  string `json:"LinkedIn"`
	Instagram string `json:"Instagram"`
}

// WorkingEnrichment renders a contact bundle for a reachable site.
func WorkingEnrichment(b ContactBundle) Enrichment {
	return Enrichment{
		Status:    StatusWorking,
		Email:     b.Emails.Join(),
		Phone:     b.Phones.Join(),
		LinkedIn:  b.LinkedIn.Join(),
		Instagram: b.Instagram.Join(),
	}
}

// FailedEnrichment renders a row that produced no contacts.
func FailedEnrichment(status, reason string) Enrichment {
	return Enrichment{Status: status, Error: reason}
}

// Get returns the value of an output column.
func (e Enrichment) Get(column string) (string, bool) {
	switch column {
	case ColumnStatus:
		return e.Status, true
	case ColumnError:
		return e.Error, true
	case ColumnEmail:
		return e.Email, true
	case ColumnPhone:
		return e.Phone, true
	case ColumnLinkedIn:
		return e.LinkedIn, true
	case ColumnInstagram:
		return e.Instagram, true
	}
	return "", false
}

// OutputRecord is an input row extended with its enrichment.
type OutputRecord struct {
	Record
	Enrichment
	URL          string
	PagesVisited int
	Duration     time.Duration
}

// Value returns the cell for a column. Output columns take precedence over
// input columns of the same name.
func (o OutputRecord) Value(column string) string {
	if v, ok := o.Enrichment.Get(column); ok {
		return v
	}
	return o.Record.Values[column]
}

// Cells renders the record in headers order. headers is expected to be
// OutputHeaders(Columns): the leading input columns are filled by position,
// except that an output column always shows its enrichment value.
func (o OutputRecord) Cells(headers []string) []string {
	cells := make([]string, len(headers))
	for i, h := range headers {
		if v, ok := o.Enrichment.Get(h); ok {
			cells[i] = v
			continue
		}
		if i < len(o.Record.Columns) && o.Record.Columns[i] == h {
			cells[i] = o.Record.cell(i)
			continue
		}
		cells[i] = o.Record.Values[h]
	}
	return cells
}

// Fields renders the record as a flat column map.
func (o OutputRecord) Fields() map[string]string {
	fields := make(map[string]string, len(o.Record.Values)+len(OutputColumns))
	for k, v := range o.Record.Values {
		fields[k] = v
	}
	for _, col := range OutputColumns {
		fields[col], _ = o.Enrichment.Get(col)
	}
	return fields
}
