// Package timeseries holds the in-memory model shared by every pipeline stage:
// fixed-step time grids, labeled series and per-resolution datasets.
package timeseries

import (
	"strings"
)

// Label identifies one logical column. Two series with equal labels are the
// same column and never coexist in a Dataset.
type Label struct {
	Variable  string `json:"variable" yaml:"variable"`   // wind, solar, load, price, ...
	Region    string `json:"region" yaml:"region"`       // DE, DE50hertz, DKw, ...
	Attribute string `json:"attribute" yaml:"attribute"` // generation, forecast, capacity, profile, ...
	Source    string `json:"source" yaml:"source"`       // 50Hertz, ENTSO-E, own calculation, ...
	Web       string `json:"web" yaml:"web"`             // link to the publishing website
}

// String returns a slash separated representation used in logs and file
// headers. Web is omitted because it rarely helps identify a column.
func (l Label) String() string {
	return strings.Join([]string{l.Variable, l.Region, l.Attribute, l.Source}, "/")
}

// Less orders labels by variable, region, attribute, source, web.
func (l Label) Less(o Label) bool {
	switch {
	case l.Variable != o.Variable:
		return l.Variable < o.Variable
	case l.Region != o.Region:
		return l.Region < o.Region
	case l.Attribute != o.Attribute:
		return l.Attribute < o.Attribute
	case l.Source != o.Source:
		return l.Source < o.Source
	default:
		return l.Web < o.Web
	}
}

// Parts returns the five label parts in header order.
func (l Label) Parts() []string {
	return []string{l.Variable, l.Region, l.Attribute, l.Source, l.Web}
}

// HeaderNames are the names of the label parts, in the order of Parts.
var HeaderNames = []string{"variable", "region", "attribute", "source", "web"}
