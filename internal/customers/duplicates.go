package customers

import (
	"slices"
	"strings"
)

// DuplicateGroup is a set of projects sharing one e-mail address,
// compared case-insensitively.
type DuplicateGroup struct {
	Email    string     `json:"email"`
	Count    int        `json:"count"`
	Projects []*Project `json:"projects"`
}

// FindDuplicates groups projects by trimmed, lower-cased e-mail and returns
// the groups with more than one member. Groups are ordered by size, then by
// e-mail; members keep their input order.
func FindDuplicates(projects []*Project) []DuplicateGroup {
	index := make(map[string]int)
	var groups []DuplicateGroup
	for _, p := range projects {
		if p == nil {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(p.Email))
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DuplicateGroup{Email: key})
		}
		groups[i].Projects = append(groups[i].Projects, p)
		groups[i].Count++
	}

	out := slices.DeleteFunc(groups, func(g DuplicateGroup) bool { return g.Count < 2 })
	slices.SortStableFunc(out, func(a, b DuplicateGroup) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Email, b.Email)
	})
	return out
}
