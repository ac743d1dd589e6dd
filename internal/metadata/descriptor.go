// Package metadata describes a run's outputs: the data package descriptor
// published next to the files, and the optional SQL sink holding the tables
// and their lineage.
package metadata

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/catalog"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/tables"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// DescriptorName is the key the descriptor is published under.
const DescriptorName = "datapackage.json"

// Descriptor is the machine-readable description of the published package.
type Descriptor struct {
	Name      string       `json:"name"`
	Title     string       `json:"title"`
	ID        string       `json:"id"`
	Version   string       `json:"version"`
	Created   time.Time    `json:"created"`
	Producer  ProducerInfo `json:"producer"`
	Sources   []SourceInfo `json:"sources"`
	Resources []Resource   `json:"resources"`
}

// ProducerInfo describes the software that produced the package.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// SourceInfo names one data provider.
type SourceInfo struct {
	Title string `json:"title"`
	Path  string `json:"path,omitempty"`
}

// Resource is one published file.
type Resource struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	Format    string  `json:"format"`
	MediaType string  `json:"mediatype"`
	Hash      string  `json:"hash"`
	Bytes     int64   `json:"bytes"`
	Rows      int     `json:"rows,omitempty"`
	Schema    *Schema `json:"schema,omitempty"`
}

// Schema lists the fields of a tabular resource.
type Schema struct {
	Fields     []Field  `json:"fields"`
	PrimaryKey []string `json:"primaryKey,omitempty"`
}

// Field describes one column. Series columns carry their label parts.
type Field struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Format      string            `json:"format,omitempty"`
	Unit        string            `json:"unit,omitempty"`
	Description string            `json:"description,omitempty"`
	Label       *timeseries.Label `json:"label,omitempty"`
}

// NewDescriptor starts a descriptor for run id.
func NewDescriptor(id string, producer ProducerInfo, created time.Time) *Descriptor {
	return &Descriptor{
		Name:     "time_series",
		Title:    "Time series",
		ID:       id,
		Version:  created.UTC().Format("2006-01-02"),
		Created:  created.UTC(),
		Producer: producer,
	}
}

// AddSources lists the providers of the catalog, with the first web link
// each one publishes under.
func (d *Descriptor) AddSources(c *catalog.Catalog) {
	for _, name := range c.Sources() {
		info := SourceInfo{Title: name}
		for _, e := range c.Entries() {
			if e.Source == name && e.Web != "" {
				info.Path = e.Web
				break
			}
		}
		d.Sources = append(d.Sources, info)
	}
}

// AddResource records a published file.
func (d *Descriptor) AddResource(name, path, format, mediaType string, digest tables.Digest, rows int, schema *Schema) {
	d.Resources = append(d.Resources, Resource{
		Name:      name,
		Path:      path,
		Format:    format,
		MediaType: mediaType,
		Hash:      digest.Hash,
		Bytes:     digest.Bytes,
		Rows:      rows,
		Schema:    schema,
	})
	sort.SliceStable(d.Resources, func(i, j int) bool { return d.Resources[i].Path < d.Resources[j].Path })
}

// Marshal returns the descriptor as indented JSON.
func (d *Descriptor) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Unit returns the unit hint of a series.
func Unit(l timeseries.Label) string {
	switch {
	case l.Attribute == "profile":
		return "fraction"
	case l.Variable == "price":
		return "EUR/MWh"
	default:
		return "MW"
	}
}

// LongSchema describes a long-format table.
func LongSchema() *Schema {
	fields := []Field{
		{Name: "utc_timestamp", Type: "datetime", Format: "fmt:%Y-%m-%dT%H%M%SZ", Description: "Start of timeperiod in Coordinated Universal Time"},
		{Name: "variable", Type: "string"},
		{Name: "region", Type: "string"},
		{Name: "attribute", Type: "string"},
		{Name: "source", Type: "string"},
		{Name: "web", Type: "string"},
		{Name: "value", Type: "number", Description: "Value in the unit of the series, empty when missing"},
	}
	return &Schema{Fields: fields, PrimaryKey: tables.Columns[:6]}
}

// WideSchema describes a wide table of ds: the timestamp column followed by
// one column per series.
func WideSchema(ds *timeseries.Dataset) *Schema {
	fields := []Field{{
		Name:        tables.TimestampHeader,
		Type:        "datetime",
		Format:      "fmt:%Y-%m-%dT%H%M%SZ",
		Description: "Start of timeperiod in Coordinated Universal Time",
	}}
	for _, s := range ds.All() {
		l := s.Label
		fields = append(fields, Field{
			Name:  l.String(),
			Type:  "number",
			Unit:  Unit(l),
			Label: &l,
		})
	}
	return &Schema{Fields: fields, PrimaryKey: []string{tables.TimestampHeader}}
}
