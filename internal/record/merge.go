package record

import (
	"bytes"
	"encoding/json"
	"log"
	"sort"
)

// RawDocument is one per-environment source document as fetched from the
// store: project name → grouping key → raw JSON beneath. The grouping keys
// are either source fragments (flat topology, attribute maps beneath) or
// roles (role-partitioned topology, fragment maps beneath).
type RawDocument map[string]map[string]json.RawMessage

// Merge combines the documents fetched for one environment into the
// canonical per-project record. Flat projects fold attribute-by-attribute in
// document order, later documents winning on colliding attribute keys while
// non-colliding ones survive. Role-partitioned projects merge one level deep:
// a later document replaces the whole role entry. Projects that resolve to an
// empty attribute set are dropped and logged.
func Merge(docs []RawDocument) Merged {
	combined := map[string]map[string][]json.RawMessage{}
	for _, doc := range docs {
		for proj, groups := range doc {
			if combined[proj] == nil {
				combined[proj] = map[string][]json.RawMessage{}
			}
			for key, raw := range groups {
				combined[proj][key] = append(combined[proj][key], raw)
			}
		}
	}

	merged := Merged{}
	for proj, groups := range combined {
		if len(groups) == 0 {
			log.Printf("record: no params for %s", proj)
			continue
		}
		dep, ok := resolve(groups)
		if !ok {
			log.Printf("record: no params for %s", proj)
			continue
		}
		merged[proj] = dep
	}
	return merged
}

// resolve classifies one project's merged grouping entries and reduces them
// to a Deployment. Each grouping key carries its raw values in document
// order. Role-partitioned when every grouping value is an object whose values
// are themselves objects (role → fragment → attributes); flat otherwise
// (fragment → attributes).
func resolve(groups map[string][]json.RawMessage) (Deployment, bool) {
	decoded := make(map[string][]map[string]json.RawMessage, len(groups))
	rolePartitioned := true
	for key, raws := range groups {
		for _, raw := range raws {
			var inner map[string]json.RawMessage
			if err := json.Unmarshal(raw, &inner); err != nil {
				log.Printf("record: skipping unreadable group %q: %v", key, err)
				continue
			}
			decoded[key] = append(decoded[key], inner)
			for _, v := range inner {
				if !isObject(v) {
					rolePartitioned = false
				}
			}
		}
	}
	if len(decoded) == 0 {
		return Deployment{}, false
	}

	if rolePartitioned {
		roles := map[string]AttributeSet{}
		for role, entries := range decoded {
			// later documents replace the whole role entry
			attrs := reduceFragments(entries[len(entries)-1])
			if len(attrs) > 0 {
				roles[role] = attrs
			}
		}
		if len(roles) == 0 {
			return Deployment{}, false
		}
		return Deployment{Topology: TopologyRoles, Roles: roles}, true
	}

	attrs := AttributeSet{}
	for _, frag := range sortedGroupKeys(decoded) {
		for _, fields := range decoded[frag] {
			for key, raw := range fields {
				if !Recognized(key) {
					continue
				}
				var value string
				if err := json.Unmarshal(raw, &value); err != nil {
					continue
				}
				attrs[key] = value
			}
		}
	}
	if len(attrs) == 0 {
		return Deployment{}, false
	}
	return Deployment{Topology: TopologyFlat, Attrs: attrs}, true
}

// reduceFragments merges a role's fragment attribute maps right-biased by
// sorted fragment key and filters to recognized attributes.
func reduceFragments(fragments map[string]json.RawMessage) AttributeSet {
	attrs := AttributeSet{}
	for _, frag := range sortedRawKeys(fragments) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(fragments[frag], &fields); err != nil {
			continue
		}
		for key, raw := range fields {
			if !Recognized(key) {
				continue
			}
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				continue
			}
			attrs[key] = value
		}
	}
	return attrs
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func sortedGroupKeys(m map[string][]map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRawKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
