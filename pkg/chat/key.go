package chat

import "sort"

// CanonicalKey returns the participant set as an ascending sequence with
// duplicates and empty ids removed. The input is not modified.
func CanonicalKey(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
