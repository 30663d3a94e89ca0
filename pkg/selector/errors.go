package selector

import (
	"errors"
	"fmt"

	"github.com/l7mp/liveview/pkg/util"
)

var (
	// ErrIDField is returned when a projection targets the identifier field.
	ErrIDField = errors.New("identifier field cannot be projected explicitly")
	// ErrPathSeparator is returned when a projected field name contains a path separator.
	ErrPathSeparator = errors.New("field name contains a path separator")
)

type ErrSelector = error

func NewSelectorError(spec any, err error) ErrSelector {
	return fmt.Errorf("invalid selector %s: %w", util.Stringify(spec), err)
}

type ErrProjection = error

func NewProjectionError(field string, err error) ErrProjection {
	return fmt.Errorf("invalid projection on field %q: %w", field, err)
}
