package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func permutations(in []string) [][]string {
	if len(in) <= 1 {
		return [][]string{append([]string(nil), in...)}
	}
	var out [][]string
	for i := range in {
		rest := make([]string, 0, len(in)-1)
		rest = append(rest, in[:i]...)
		rest = append(rest, in[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]string{in[i]}, p...))
		}
	}
	return out
}

func TestCanonicalKeyPermutationInvariant(t *testing.T) {
	sets := [][]string{
		{"u1", "u2"},
		{"zed", "amy", "bob"},
		{"b", "a", "d", "c"},
	}
	for _, set := range sets {
		want := CanonicalKey(set)
		for _, p := range permutations(set) {
			assert.Equal(t, want, CanonicalKey(p), "permutation %v", p)
		}
	}
}

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"reversed pair", []string{"u2", "u1"}, []string{"u1", "u2"}},
		{"sorted pair", []string{"u1", "u2"}, []string{"u1", "u2"}},
		{"duplicates collapse", []string{"u2", "u1", "u2"}, []string{"u1", "u2"}},
		{"empty ids dropped", []string{"", "u3", "u1"}, []string{"u1", "u3"}},
		{"nothing", nil, []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanonicalKey(tc.in))
		})
	}
}

func TestCanonicalKeyLeavesInputAlone(t *testing.T) {
	in := []string{"u3", "u1", "u2"}
	CanonicalKey(in)
	assert.Equal(t, []string{"u3", "u1", "u2"}, in)
}
