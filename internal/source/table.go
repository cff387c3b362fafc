package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aristath/phasing/internal/schedule"
)

// DefaultCatalogSample is how many elements PropertyCatalog inspects.
const DefaultCatalogSample = 200

// DefaultCategory is used for properties that carry no category.
const DefaultCategory = "General"

// Property is one named value on an element.
type Property struct {
	Name     string `json:"displayName"`
	Value    string `json:"displayValue"`
	Category string `json:"displayCategory,omitempty"`
	Units    string `json:"units,omitempty"`
}

// Element is a model element and its properties in source order.
type Element struct {
	ID         string
	Properties []Property
}

// Lookup returns the first property named name.
func (e *Element) Lookup(name string) (string, bool) {
	for _, p := range e.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Table is an in-memory element universe with properties. It implements
// schedule.PropertySource.
type Table struct {
	elements []*Element
	byID     map[string]*Element
}

// NewTable builds a table from elements. Later duplicates of an id are dropped.
func NewTable(elements []Element) *Table {
	t := &Table{byID: make(map[string]*Element, len(elements))}
	for i := range elements {
		e := elements[i]
		if e.ID == "" {
			continue
		}
		if _, dup := t.byID[e.ID]; dup {
			continue
		}
		t.elements = append(t.elements, &e)
		t.byID[e.ID] = &e
	}
	return t
}

// Len returns the number of elements.
func (t *Table) Len() int {
	return len(t.elements)
}

// ElementIDs returns every element id in source order.
func (t *Table) ElementIDs() []string {
	ids := make([]string, 0, len(t.elements))
	for _, e := range t.elements {
		ids = append(ids, e.ID)
	}
	return ids
}

// Element returns the element with the given id.
func (t *Table) Element(id string) (*Element, bool) {
	e, ok := t.byID[id]
	return e, ok
}

// GetProperties returns rows for the requested ids that exist, restricted to
// filter when it is non-empty. Unknown ids are skipped.
func (t *Table) GetProperties(ctx context.Context, elementIDs []string, filter []string) ([]schedule.PropertyRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(filter))
	for _, name := range filter {
		wanted[name] = true
	}

	rows := make([]schedule.PropertyRow, 0, len(elementIDs))
	for _, id := range elementIDs {
		e, ok := t.byID[id]
		if !ok {
			continue
		}
		props := make(map[string]string)
		for _, p := range e.Properties {
			if len(wanted) > 0 && !wanted[p.Name] {
				continue
			}
			if _, seen := props[p.Name]; !seen {
				props[p.Name] = p.Value
			}
		}
		rows = append(rows, schedule.PropertyRow{ElementID: id, Properties: props})
	}
	return rows, nil
}

// PropertyMeta describes a property seen while sampling elements.
type PropertyMeta struct {
	Key         string // category::name
	Name        string
	Category    string
	SampleValue string
	Units       string
}

// Catalog lists the properties available for mapping.
type Catalog struct {
	Names      []string       // Unique property names, sorted
	Properties []PropertyMeta // Unique by Key, sorted by category then name
}

// PropertyCatalog samples the first sample elements (DefaultCatalogSample
// when sample <= 0) and lists the property names found.
func (t *Table) PropertyCatalog(sample int) Catalog {
	if sample <= 0 {
		sample = DefaultCatalogSample
	}
	sample = min(sample, len(t.elements))

	byKey := make(map[string]PropertyMeta)
	names := make(map[string]bool)
	for _, e := range t.elements[:sample] {
		for _, p := range e.Properties {
			if p.Name == "" {
				continue
			}
			category := p.Category
			if category == "" {
				category = DefaultCategory
			}
			key := category + "::" + p.Name
			if _, ok := byKey[key]; !ok {
				byKey[key] = PropertyMeta{Key: key, Name: p.Name, Category: category, SampleValue: p.Value, Units: p.Units}
			}
			names[p.Name] = true
		}
	}

	cat := Catalog{Names: make([]string, 0, len(names)), Properties: make([]PropertyMeta, 0, len(byKey))}
	for name := range names {
		cat.Names = append(cat.Names, name)
	}
	sort.Strings(cat.Names)
	for _, meta := range byKey {
		cat.Properties = append(cat.Properties, meta)
	}
	sort.Slice(cat.Properties, func(i, j int) bool {
		a, b := cat.Properties[i], cat.Properties[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Name < b.Name
	})
	return cat
}

type jsonElement struct {
	DBID       json.RawMessage `json:"dbId"`
	Name       string          `json:"name,omitempty"`
	Properties []jsonProperty  `json:"properties"`
}

type jsonProperty struct {
	Name     string          `json:"displayName"`
	Value    json.RawMessage `json:"displayValue"`
	Category string          `json:"displayCategory"`
	Units    string          `json:"units"`
}

// LoadJSON reads a property dump: an array of
// {"dbId", "name", "properties": [{"displayName", "displayValue", "displayCategory"}]}.
// Numeric ids and values are kept in their textual form. An element name is
// exposed as a "Name" property unless one exists.
func LoadJSON(r io.Reader) (*Table, error) {
	var raw []jsonElement
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode property dump: %w", err)
	}

	elements := make([]Element, 0, len(raw))
	for i, je := range raw {
		id := scalarText(je.DBID)
		if id == "" {
			return nil, fmt.Errorf("element %d has no dbId", i)
		}
		e := Element{ID: id}
		hasName := false
		for _, jp := range je.Properties {
			e.Properties = append(e.Properties, Property{
				Name:     jp.Name,
				Value:    scalarText(jp.Value),
				Category: jp.Category,
				Units:    jp.Units,
			})
			hasName = hasName || jp.Name == schedule.NameProperty
		}
		if je.Name != "" && !hasName {
			e.Properties = append(e.Properties, Property{Name: schedule.NameProperty, Value: je.Name, Category: DefaultCategory})
		}
		elements = append(elements, e)
	}
	return NewTable(elements), nil
}

// LoadCSV reads a table whose first column is the element id and whose other
// header cells name properties.
func LoadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return NewTable(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) == 0 {
		return nil, errors.New("CSV header is empty")
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	var elements []Element
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		e := Element{ID: strings.TrimSpace(record[0])}
		for col := 1; col < len(header) && col < len(record); col++ {
			if record[col] == "" {
				continue
			}
			e.Properties = append(e.Properties, Property{Name: header[col], Value: record[col]})
		}
		elements = append(elements, e)
	}
	return NewTable(elements), nil
}

// LoadFile loads a table from a .json or .csv file.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(bytes.NewReader(data))
	case ".csv":
		return LoadCSV(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported source format %q (want .json or .csv)", filepath.Ext(path))
	}
}

// scalarText renders a JSON scalar as text: strings unquoted, numbers and
// booleans verbatim, null as empty.
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
