package agent

import (
	"reflect"
	"testing"
)

var effortTmpl = []string{"-c", "model_reasoning_effort={reasoning_effort}"}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name     string
		template []string
		prompt   string
		token    string
		effort   string
		want     []string
	}{
		{
			name:     "fresh run",
			template: []string{"exec", "--skip-git-repo-check", "{prompt}"},
			prompt:   "fix the tests",
			want:     []string{"exec", "--skip-git-repo-check", "fix the tests"},
		},
		{
			name:     "resume rewrite keeps only flags",
			template: []string{"exec", "--skip-git-repo-check", "--model", "gpt-5", "{prompt}"},
			prompt:   "--not a flag, a prompt",
			token:    "0199aa00-1111",
			want:     []string{"exec", "resume", "--skip-git-repo-check", "--model", "gpt-5", "0199aa00-1111", "--not a flag, a prompt"},
		},
		{
			name:     "resume rewrite with effort",
			template: []string{"exec", "--json", "{prompt}"},
			prompt:   "go",
			token:    "abcdef12",
			effort:   "high",
			want:     []string{"exec", "resume", "--json", "-c", "model_reasoning_effort=high", "abcdef12", "go"},
		},
		{
			name:     "explicit continuation placeholder is substituted",
			template: []string{"chat", "--resume", "{continuation}", "{prompt}"},
			prompt:   "hi",
			token:    "abcdef12",
			want:     []string{"chat", "--resume", "abcdef12", "hi"},
		},
		{
			name:     "empty continuation drops its flag",
			template: []string{"chat", "--resume", "{continuation}", "{prompt}"},
			prompt:   "hi",
			want:     []string{"chat", "hi"},
		},
		{
			name:     "non fresh verb is not rewritten",
			template: []string{"run", "{prompt}"},
			prompt:   "hi",
			token:    "abcdef12",
			want:     []string{"run", "hi"},
		},
		{
			name:     "effort inserted before prompt",
			template: []string{"exec", "{prompt}", "--session", "{session_id}"},
			prompt:   "hi",
			effort:   "low",
			want:     []string{"exec", "-c", "model_reasoning_effort=low", "hi", "--session", "s-1"},
		},
		{
			name:     "effort appended when no prompt placeholder",
			template: []string{"exec"},
			prompt:   "hi",
			effort:   "low",
			want:     []string{"exec", "-c", "model_reasoning_effort=low"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildArgs(tt.template, effortTmpl, tt.prompt, "s-1", tt.token, tt.effort)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"workdir: /x\nsession id: 0199a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b\n", "0199a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b"},
		{"Session ID:   ABCDEF0123", "abcdef0123"},
		{"session id: xyz", ""},
		{"session id: abc", ""},
		{"no marker", ""},
	}
	for _, tt := range tests {
		if got := ExtractToken(tt.in); got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
