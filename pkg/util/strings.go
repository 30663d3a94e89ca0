package util

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/json"
)

// Stringify renders a value as JSON for logging and error messages, falling back to Go syntax
// for values JSON cannot encode.
func Stringify(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}
