// Package catalog loads the source catalog: per provider and variable, where
// the raw files live and how to turn them into labeled columns.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

var (
	// ErrInvalidResolution is returned for entries with an unsupported resolution.
	ErrInvalidResolution = errors.New("invalid resolution")

	// ErrDuplicateSeries is returned when two entries produce the same label.
	ErrDuplicateSeries = errors.New("duplicate series label")

	// ErrInvalidFormat is returned for unknown file formats or compressions.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrUnknownSource is returned by Subset for names not in the catalog.
	ErrUnknownSource = errors.New("unknown source")
)

// Supported formats and compressions.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// Column maps one value column of a raw file to a label. Variable and Region
// default to the entry's.
type Column struct {
	Name      string `yaml:"name"`
	Attribute string `yaml:"attribute"`
	Variable  string `yaml:"variable,omitempty"`
	Region    string `yaml:"region,omitempty"`
}

// Entry describes the files of one variable published by one source.
type Entry struct {
	Source   string `yaml:"-"`
	Variable string `yaml:"-"`

	Web         string        `yaml:"web"`
	Resolution  string        `yaml:"resolution"`
	Format      string        `yaml:"format"`
	Compression string        `yaml:"compression"`
	Region      string        `yaml:"region"`
	Columns     []Column      `yaml:"columns"`
	Sheet       string        `yaml:"sheet,omitempty"`
	SkipRows    int           `yaml:"skip_rows"`
	Separator   string        `yaml:"separator,omitempty"`
	Decimal     string        `yaml:"decimal,omitempty"`
	TimeColumns []string      `yaml:"time_columns"`
	TimeLayout  string        `yaml:"time_layout"`
	Location    string        `yaml:"location"`
	Shift       time.Duration `yaml:"shift"`
}

// Key returns "source/variable", the prefix of the entry's raw files.
func (e *Entry) Key() string {
	return e.Source + "/" + e.Variable
}

// Res returns the parsed resolution.
func (e *Entry) Res() timeseries.Resolution {
	return timeseries.Resolution(e.Resolution)
}

// Labels returns the labels of the entry's columns, in column order.
func (e *Entry) Labels() []timeseries.Label {
	out := make([]timeseries.Label, len(e.Columns))
	for i, c := range e.Columns {
		out[i] = e.Label(c)
	}
	return out
}

// Label builds the label of column c.
func (e *Entry) Label(c Column) timeseries.Label {
	l := timeseries.Label{
		Variable:  e.Variable,
		Region:    e.Region,
		Attribute: c.Attribute,
		Source:    e.Source,
		Web:       e.Web,
	}
	if c.Variable != "" {
		l.Variable = c.Variable
	}
	if c.Region != "" {
		l.Region = c.Region
	}
	return l
}

// TimeLocation loads the zone raw timestamps are expressed in. Empty means UTC.
func (e *Entry) TimeLocation() (*time.Location, error) {
	if e.Location == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(e.Location)
}

func (e *Entry) applyDefaults() {
	if e.Format == "" {
		e.Format = FormatCSV
	}
	if e.Compression == "" {
		e.Compression = CompressionNone
	}
	if e.Separator == "" {
		e.Separator = ","
	}
	if e.Decimal == "" {
		e.Decimal = "."
	}
	if e.TimeLayout == "" {
		e.TimeLayout = time.RFC3339
	}
}

func (e *Entry) validate() error {
	if _, err := timeseries.ParseResolution(e.Resolution); err != nil {
		return fmt.Errorf("%s: %w: %q", e.Key(), ErrInvalidResolution, e.Resolution)
	}
	switch e.Format {
	case FormatCSV, FormatXLSX:
	default:
		return fmt.Errorf("%s: %w: format %q", e.Key(), ErrInvalidFormat, e.Format)
	}
	switch e.Compression {
	case CompressionNone, CompressionZstd:
	default:
		return fmt.Errorf("%s: %w: compression %q", e.Key(), ErrInvalidFormat, e.Compression)
	}
	if len([]rune(e.Separator)) != 1 || len([]rune(e.Decimal)) != 1 {
		return fmt.Errorf("%s: separator and decimal must be single characters", e.Key())
	}
	if len(e.TimeColumns) == 0 {
		return fmt.Errorf("%s: at least one time column is required", e.Key())
	}
	if len(e.Columns) == 0 {
		return fmt.Errorf("%s: at least one value column is required", e.Key())
	}
	if e.Region == "" {
		for _, c := range e.Columns {
			if c.Region == "" {
				return fmt.Errorf("%s: column %q has no region", e.Key(), c.Name)
			}
		}
	}
	for _, c := range e.Columns {
		if c.Name == "" || c.Attribute == "" {
			return fmt.Errorf("%s: columns need a name and an attribute", e.Key())
		}
	}
	if _, err := e.TimeLocation(); err != nil {
		return fmt.Errorf("%s: location %q: %w", e.Key(), e.Location, err)
	}
	return nil
}

// Catalog is the validated set of entries.
type Catalog struct {
	entries map[string]map[string]*Entry
}

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]map[string]*Entry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{entries: make(map[string]map[string]*Entry, len(raw))}
	for source, vars := range raw {
		c.entries[source] = make(map[string]*Entry, len(vars))
		for variable, e := range vars {
			if e == nil {
				e = &Entry{}
			}
			e.Source = source
			e.Variable = variable
			e.applyDefaults()
			c.entries[source][variable] = e
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every entry and rejects labels produced twice within one
// resolution.
func (c *Catalog) Validate() error {
	seen := make(map[timeseries.Resolution]map[timeseries.Label]string)
	for _, e := range c.Entries() {
		if err := e.validate(); err != nil {
			return err
		}
		res := e.Res()
		if seen[res] == nil {
			seen[res] = make(map[timeseries.Label]string)
		}
		for _, l := range e.Labels() {
			if other, dup := seen[res][l]; dup {
				return fmt.Errorf("%w: %s produced by %s and %s", ErrDuplicateSeries, l, other, e.Key())
			}
			seen[res][l] = e.Key()
		}
	}
	return nil
}

// Entries returns all entries ordered by source, then variable.
func (c *Catalog) Entries() []*Entry {
	var out []*Entry
	for _, vars := range c.entries {
		for _, e := range vars {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Variable < out[j].Variable
	})
	return out
}

// Sources returns the source names in sorted order.
func (c *Catalog) Sources() []string {
	out := make([]string, 0, len(c.entries))
	for s := range c.entries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Entry returns the entry of source and variable.
func (c *Catalog) Entry(source, variable string) (*Entry, bool) {
	e, ok := c.entries[source][variable]
	return e, ok
}

// Subset keeps only the named sources. An empty list keeps everything.
func (c *Catalog) Subset(names []string) (*Catalog, error) {
	if len(names) == 0 {
		return c, nil
	}
	out := &Catalog{entries: make(map[string]map[string]*Entry, len(names))}
	var unknown []string
	for _, n := range names {
		vars, ok := c.entries[n]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		out.entries[n] = vars
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, strings.Join(unknown, ", "))
	}
	return out, nil
}

// Resolutions returns the resolutions present in the catalog, finest first.
func (c *Catalog) Resolutions() []timeseries.Resolution {
	present := make(map[timeseries.Resolution]bool)
	for _, e := range c.Entries() {
		present[e.Res()] = true
	}
	var out []timeseries.Resolution
	for _, r := range timeseries.Resolutions {
		if present[r] {
			out = append(out, r)
		}
	}
	return out
}
