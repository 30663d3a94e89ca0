package pipeline

import (
	"github.com/ohler55/ojg/jp"
)

// isJSONPath decides whether a string argument is a JSONPath reference into the document rather
// than a string literal.
func isJSONPath(s string) bool { return len(s) > 0 && s[0] == '$' }

// parseJSONPath compiles a JSONPath. The root ref "$." is accepted as an alias of "$".
func parseJSONPath(key string) (jp.Expr, error) {
	if key == "$." {
		key = "$"
	}
	return jp.ParseString(key)
}

// GetJSONPathExp evaluates a JSONPath expression on the specified object and returns the first
// result, or nil if the path does not resolve.
func GetJSONPathExp(query string, object any) (any, error) {
	je, err := parseJSONPath(query)
	if err != nil {
		return nil, err
	}
	return getJSONPath(je, object), nil
}

func getJSONPath(je jp.Expr, object any) any {
	values := je.Get(object)
	if len(values) == 0 {
		return nil
	}
	return values[0]
}
