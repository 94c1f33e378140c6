package style

import "testing"

func TestTitleCase(t *testing.T) {
	cases := map[string]string{
		"primary repo is a git repository": "Primary Repo Is A Git Repository",
		"backend-team":                     "Backend-Team",
		"":                                 "",
	}
	for in, want := range cases {
		if got := TitleCase(in); got != want {
			t.Errorf("TitleCase(%q) = %q, want %q", in, got, want)
		}
	}
}
