package extract

import (
	"encoding/json"
	"regexp"
)

var jsonURLRe = regexp.MustCompile(`^(https?://|/[^/])`)

// JSONURLs walks a JSON document and returns every string leaf that looks
// like an absolute URL or a rooted path, deduplicated. Array elements are
// walked in order; the order of object members is not defined.
func JSONURLs(raw []byte) []string {
	var root interface{}
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil
	}

	set := newURLSet()
	walkJSON(root, set)
	return set.order
}

func walkJSON(node interface{}, set *urlSet) {
	switch v := node.(type) {
	case string:
		if jsonURLRe.MatchString(v) {
			set.add(v)
		}
	case []interface{}:
		for _, item := range v {
			walkJSON(item, set)
		}
	case map[string]interface{}:
		for _, item := range v {
			walkJSON(item, set)
		}
	}
}
