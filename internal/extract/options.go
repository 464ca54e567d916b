// Package extract produces candidate URL strings from HTML documents and
// live browser pages.
package extract

// Options gates individual extraction rules.
type Options struct {
	IncludeDataAttributes      bool `json:"includeDataAttributes" yaml:"include_data_attributes"`
	IncludeOnClick             bool `json:"includeOnClick" yaml:"include_onclick"`
	IncludeForms               bool `json:"includeForms" yaml:"include_forms"`
	IncludeMetaRefresh         bool `json:"includeMetaRefresh" yaml:"include_meta_refresh"`
	IncludeCanonical           bool `json:"includeCanonical" yaml:"include_canonical"`
	IncludeInteractiveElements bool `json:"includeInteractiveElements" yaml:"include_interactive_elements"`
}

// DefaultOptions enables every extraction rule.
func DefaultOptions() Options {
	return Options{
		IncludeDataAttributes:      true,
		IncludeOnClick:             true,
		IncludeForms:               true,
		IncludeMetaRefresh:         true,
		IncludeCanonical:           true,
		IncludeInteractiveElements: true,
	}
}

// urlSet accumulates URLs deduplicated in first-encountered order.
type urlSet struct {
	seen  map[string]struct{}
	order []string
}

func newURLSet() *urlSet {
	return &urlSet{seen: make(map[string]struct{})}
}

func (s *urlSet) add(raw string) {
	if raw == "" {
		return
	}
	if _, ok := s.seen[raw]; ok {
		return
	}
	s.seen[raw] = struct{}{}
	s.order = append(s.order, raw)
}

func (s *urlSet) addAll(raws []string) {
	for _, r := range raws {
		s.add(r)
	}
}
