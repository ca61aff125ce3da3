package agent

import (
	"strings"
)

// Template placeholders substituted into the configured argument list.
const (
	PlaceholderPrompt          = "{prompt}"
	PlaceholderSessionID       = "{session_id}"
	PlaceholderContinuation    = "{continuation}"
	PlaceholderReasoningEffort = "{reasoning_effort}"
)

// freshRunVerbs are primary verbs that start a new conversation and have
// an explicit "resume" form.
var freshRunVerbs = map[string]bool{"exec": true}

// BuildArgs renders the argument template for one invocation.
//
// With a continuation token, a template that has no {continuation}
// placeholder and whose primary verb starts a fresh run is rewritten to
// "<verb> resume <flags...> <token> <prompt>". Only flag-style options and
// their attached values survive the rewrite; positional values never do.
func BuildArgs(template, effortTemplate []string, prompt, sessionID, token, effort string) []string {
	repl := strings.NewReplacer(
		PlaceholderPrompt, prompt,
		PlaceholderSessionID, sessionID,
		PlaceholderContinuation, token,
		PlaceholderReasoningEffort, effort,
	)

	var effortArgs []string
	if effort != "" {
		for _, a := range effortTemplate {
			effortArgs = append(effortArgs, repl.Replace(a))
		}
	}

	verbIdx := primaryVerb(template)
	if token != "" && !hasPlaceholder(template, PlaceholderContinuation) &&
		verbIdx >= 0 && freshRunVerbs[template[verbIdx]] {
		out := append([]string{}, template[:verbIdx+1]...)
		out = append(out, "resume")
		out = append(out, flagOptions(template[verbIdx+1:], repl)...)
		out = append(out, effortArgs...)
		return append(out, token, prompt)
	}

	out := make([]string, 0, len(template)+len(effortArgs))
	inserted := len(effortArgs) == 0
	for i, a := range template {
		if !inserted && strings.Contains(a, PlaceholderPrompt) {
			out = append(out, effortArgs...)
			inserted = true
		}
		if token == "" && strings.Contains(a, PlaceholderContinuation) {
			// Drop the empty value and the flag that introduced it.
			if a == PlaceholderContinuation && i > 0 && isFlag(template[i-1]) && len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		out = append(out, repl.Replace(a))
	}
	if !inserted {
		out = append(out, effortArgs...)
	}
	return out
}

// primaryVerb returns the index of the first non-flag argument that is
// not a placeholder, or -1.
func primaryVerb(template []string) int {
	for i, a := range template {
		if isFlag(a) {
			continue
		}
		if strings.Contains(a, "{") {
			return -1
		}
		return i
	}
	return -1
}

// flagOptions keeps "-x", "--flag" and "--flag=value" arguments plus a
// literal value directly following a bare flag. Anything carrying a
// placeholder other than the session id is treated as positional.
func flagOptions(args []string, repl *strings.Replacer) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !isFlag(a) {
			continue
		}
		out = append(out, repl.Replace(a))
		if strings.Contains(a, "=") || i+1 >= len(args) {
			continue
		}
		next := args[i+1]
		if isFlag(next) || strings.Contains(next, PlaceholderPrompt) || strings.Contains(next, PlaceholderContinuation) {
			continue
		}
		out = append(out, repl.Replace(next))
		i++
	}
	return out
}

func isFlag(a string) bool {
	return len(a) > 1 && a[0] == '-'
}

func hasPlaceholder(template []string, p string) bool {
	for _, a := range template {
		if strings.Contains(a, p) {
			return true
		}
	}
	return false
}
