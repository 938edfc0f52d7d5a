package bootstage

import "regexp"

const parseErrMsg = "parse error"

var whitespace = regexp.MustCompile(`\s+`)

func unspace(form string) string {
	return whitespace.ReplaceAllLiteralString(form, "")
}

// ParseOrder parses a launch order formula such as "config > db > http" into
// the stage names it lists, in order. Stage names may contain the characters
// 0-9, a-z, A-Z, underscore and dash. Whitespace is ignored.
func ParseOrder(form string) ([]string, error) {
	form = unspace(form)
	if form == "" {
		return nil, newParseError("empty sequence")
	}

	var (
		names []string
		word  = make([]rune, 0, 32)
	)

	for _, r := range form {
		switch {
		case r == '>':
			if len(word) == 0 {
				return nil, newParseError("missing stage name before '>'")
			}
			names = append(names, string(word))
			word = word[:0]
		case isNameRune(r):
			word = append(word, r)
		default:
			return nil, newParseError("invalid character(s) in stage name")
		}
	}

	if len(word) == 0 {
		return nil, newParseError("missing stage name after '>'")
	}

	return append(names, string(word)), nil
}

// MustParseOrder is like ParseOrder but panics if the formula can't be parsed.
func MustParseOrder(form string) []string {
	names, err := ParseOrder(form)
	if err != nil {
		panic(err.Error())
	}
	return names
}

func isNameRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || r == '-'
}
