package match

import (
	"regexp"
	"strings"
)

var (
	quotedRe = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)

	// Verbs that commonly precede an element reference in a spoken command.
	commandVerbRe = regexp.MustCompile(`(?i)\b(?:click(?: on)?|press|tap|go to|open|select|choose|fill in|fill out|type in)\s+(?:the\s+|on\s+)?`)
)

// ExtractPhrases pulls candidate target phrases out of a spoken or
// transcribed input, most specific first.
//
// Quoted substrings win outright. Otherwise the text after a command verb
// is used, and finally the trailing 2-4 words of the input serve as a
// sliding window — the input is usually a live, still-growing transcript,
// so the reference is almost always at the end.
func ExtractPhrases(input string) []string {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}

	if quoted := quotedRe.FindAllStringSubmatch(input, -1); len(quoted) > 0 {
		out := make([]string, 0, len(quoted))
		for _, m := range quoted {
			q := m[1]
			if q == "" {
				q = m[2]
			}
			if q = strings.TrimSpace(q); q != "" {
				out = append(out, q)
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		p = strings.TrimSpace(strings.Trim(p, ".,!?;:"))
		if p == "" {
			return
		}
		key := strings.ToLower(p)
		if !seen[key] {
			seen[key] = true
			out = append(out, p)
		}
	}

	// Text following the last command verb.
	if locs := commandVerbRe.FindAllStringIndex(input, -1); len(locs) > 0 {
		rest := input[locs[len(locs)-1][1]:]
		words := strings.Fields(rest)
		for n := min(4, len(words)); n >= 1; n-- {
			add(strings.Join(words[:n], " "))
		}
	}

	// Trailing window of the transcript.
	words := strings.Fields(input)
	for n := min(4, len(words)); n >= 2; n-- {
		add(strings.Join(words[len(words)-n:], " "))
	}
	if len(words) >= 1 {
		add(words[len(words)-1])
	}
	return out
}
