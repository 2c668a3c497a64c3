package parse

import "embed"

//go:embed queries
var builtinQueries embed.FS

// DefaultQuery returns the built-in tag query source for a grammar name,
// or false if none ships with this binary. Callers may always supply their
// own query source to New instead.
func DefaultQuery(language string) (string, bool) {
	data, err := builtinQueries.ReadFile("queries/" + language + "/tags.scm")
	if err != nil {
		return "", false
	}

	return string(data), true
}
