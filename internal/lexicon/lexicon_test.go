package lexicon

import (
	"reflect"
	"testing"
)

func TestSetMatchesWholeTerms(t *testing.T) {
	t.Parallel()

	set := NewSet([]string{"JLP", "Portland", "St. Andrew", "vote"})

	tests := []struct {
		text string
		want []string
	}{
		{text: "The JLP's new slate", want: []string{"JLP"}},
		{text: "Portlandia premieres tonight", want: nil},
		{text: "Residents of Saint Andrew lined up", want: []string{"St. Andrew"}},
		{text: "st andrew  voters", want: []string{"St. Andrew"}},
		{text: "Andrew Holness spoke", want: nil},
		{text: "VOTE early in Portland.", want: []string{"Portland", "vote"}},
	}

	for _, tc := range tests {
		got := set.Matches(tc.text)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Matches(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestSetDropsContainedMatches(t *testing.T) {
	t.Parallel()

	set := NewSet([]string{"Holness", "Andrew Holness", "JLP"})
	got := set.Matches("Andrew Holness leads the JLP")
	want := []string{"Andrew Holness", "JLP"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Matches = %v, want %v", got, want)
	}

	if set.Count("Holness alone") != 1 {
		t.Fatalf("standalone surname should still count")
	}
}

func TestSetFirstFollowsOrder(t *testing.T) {
	t.Parallel()

	set := NewSet([]string{"Kingston", "St. Andrew"}, []string{"kingston"})
	if set.Len() != 2 {
		t.Fatalf("case-insensitive repeats must collapse, got %d", set.Len())
	}

	got, ok := set.First("From St. Andrew to Kingston")
	if !ok || got != "Kingston" {
		t.Fatalf("First = %q, %v", got, ok)
	}

	if _, ok := set.First("nothing relevant"); ok {
		t.Fatalf("expected no match")
	}
}
