package timeseries

import "sort"

// techKey groups regional series of one technology and attribute.
type techKey struct {
	variable  string
	attribute string
}

// SiblingIndex maps (variable, attribute) to the regional sub-area series of
// a dataset. It holds pointers into the dataset, so repairs applied after the
// index is built are visible through it.
type SiblingIndex struct {
	regions map[string]bool
	byTech  map[techKey][]*Series
}

// NewSiblingIndex indexes the series of d whose region is one of regions.
func NewSiblingIndex(d *Dataset, regions []string) *SiblingIndex {
	idx := &SiblingIndex{
		regions: make(map[string]bool, len(regions)),
		byTech:  make(map[techKey][]*Series),
	}
	for _, r := range regions {
		idx.regions[r] = true
	}
	for _, s := range d.All() {
		if !idx.regions[s.Label.Region] {
			continue
		}
		k := techKey{s.Label.Variable, s.Label.Attribute}
		idx.byTech[k] = append(idx.byTech[k], s)
	}
	return idx
}

// Regional returns every indexed series for variable and attribute.
func (idx *SiblingIndex) Regional(variable, attribute string) []*Series {
	return idx.byTech[techKey{variable, attribute}]
}

// Siblings returns the indexed series sharing label's variable and attribute
// in a different region.
func (idx *SiblingIndex) Siblings(label Label) []*Series {
	var out []*Series
	for _, s := range idx.Regional(label.Variable, label.Attribute) {
		if s.Label.Region != label.Region {
			out = append(out, s)
		}
	}
	return out
}

// Techs returns the distinct (variable, attribute) pairs present in the index.
func (idx *SiblingIndex) Techs() [][2]string {
	out := make([][2]string, 0, len(idx.byTech))
	for k := range idx.byTech {
		out = append(out, [2]string{k.variable, k.attribute})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}
