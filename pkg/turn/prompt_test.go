package turn

import (
	"encoding/json"
	"testing"

	"pgregory.net/rapid"
)

func TestAugment(t *testing.T) {
	tests := []struct {
		name     string
		template string
		query    string
		snippets []string
		want     string
	}{
		{
			name:     "snippets fill first placeholder",
			template: "Q: <query> R: [tt] keep [this]",
			query:    "when?",
			snippets: []string{"a", "b"},
			want:     "Q: when? R: [Timetable data:\na\n\nb] keep [this]",
		},
		{
			name:     "no snippets",
			template: "Q: <query> R: [tt]",
			query:    "when?",
			want:     "Q: when? R: No timetable data.",
		},
		{
			name:     "no placeholder",
			template: "Q: <query>",
			query:    "when?",
			snippets: []string{"a"},
			want:     "Q: when?",
		},
		{
			name:     "query repeated",
			template: "<query>/<query> []",
			query:    "x",
			want:     "x/x No timetable data.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Augment(tt.template, tt.query, tt.snippets); got != tt.want {
				t.Errorf("Augment = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAugmentDefaultTemplate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		query := rapid.StringMatching(`[a-z ?]{1,20}`).Draw(t, "query")
		got := Augment(DefaultTemplate, query, nil)
		want := "- Question: " + query + "\n- Answer that question using the following text as a resource: " + NoSnippets
		if len(got) < len(want) || got[len(got)-len(want):] != want {
			t.Fatalf("Augment tail = %q", got)
		}
	})
}

func TestStateJSON(t *testing.T) {
	for s := Idle; s <= Failed; s++ {
		b, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", s, err)
		}
		var back State
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("Unmarshal(%s): %v", b, err)
		}
		if back != s {
			t.Errorf("round trip %v -> %s -> %v", s, b, back)
		}
	}
	if State(99).String() != "unknown" {
		t.Errorf("State(99) = %q", State(99).String())
	}
}

func TestStateActive(t *testing.T) {
	if Idle.Active() {
		t.Error("Idle is active")
	}
	for s := Recording; s <= Failed; s++ {
		if !s.Active() {
			t.Errorf("%v is not active", s)
		}
	}
}
