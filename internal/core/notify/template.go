package notify

import (
	"regexp"
)

// tokenPattern erkennt $$, $name und ${name}
var tokenPattern = regexp.MustCompile(`\$(?:(\$)|([_a-zA-Z][_a-zA-Z0-9]*)|\{([_a-zA-Z][_a-zA-Z0-9]*)\})`)

// SafeSubstitute ersetzt $name und ${name} durch Werte aus tokens.
// Unbekannte Platzhalter bleiben unverändert stehen, $$ wird zu $.
// Die Funktion schlägt nie fehl.
func SafeSubstitute(template string, tokens map[string]string) string {
	return tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		groups := tokenPattern.FindStringSubmatch(match)
		switch {
		case groups[1] != "":
			return "$"
		case groups[2] != "":
			if v, ok := tokens[groups[2]]; ok {
				return v
			}
		case groups[3] != "":
			if v, ok := tokens[groups[3]]; ok {
				return v
			}
		}
		return match
	})
}
