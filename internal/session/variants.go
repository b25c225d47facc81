package session

import "strings"

// VariantGroup is one named set of options, e.g. Size: S, M, L.
type VariantGroup struct {
	Name    string   `json:"name"`
	Options []string `json:"options"`
}

// CleanVariantGroups trims names and options, drops blank entries and
// case-insensitive duplicates (first occurrence wins) and drops groups left
// without a name or options.
func CleanVariantGroups(groups []VariantGroup) []VariantGroup {
	out := make([]VariantGroup, 0, len(groups))
	seenGroups := map[string]bool{}
	for _, g := range groups {
		name := strings.TrimSpace(g.Name)
		if name == "" || seenGroups[strings.ToLower(name)] {
			continue
		}

		var opts []string
		seen := map[string]bool{}
		for _, o := range g.Options {
			o = strings.TrimSpace(o)
			k := strings.ToLower(o)
			if o == "" || seen[k] {
				continue
			}
			seen[k] = true
			opts = append(opts, o)
		}
		if len(opts) == 0 {
			continue
		}
		seenGroups[strings.ToLower(name)] = true
		out = append(out, VariantGroup{Name: name, Options: opts})
	}
	return out
}

func cloneGroups(groups []VariantGroup) []VariantGroup {
	if groups == nil {
		return nil
	}
	out := make([]VariantGroup, len(groups))
	for i, g := range groups {
		out[i] = VariantGroup{Name: g.Name, Options: append([]string(nil), g.Options...)}
	}
	return out
}
