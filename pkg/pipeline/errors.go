package pipeline

import (
	"fmt"
)

type ErrPipeline = error

func NewPipelineError(err error) ErrPipeline {
	return fmt.Errorf("invalid pipeline: %w", err)
}

type ErrStage = error

func NewStageError(index int, op string, err error) ErrStage {
	return fmt.Errorf("stage %d (%s): %w", index, op, err)
}

type ErrInvalidArguments = error

func NewInvalidArgumentsError(content string) ErrInvalidArguments {
	return fmt.Errorf("invalid arguments at %q", content)
}

type ErrExpression = error

func NewExpressionError(e *Expression, err error) ErrExpression {
	return fmt.Errorf("failed to evaluate expression %q: %w", e.Raw, err)
}
