package agent

import "errors"

// Sentinel errors reported by the document agents. Classify with
// errors.Is; the underlying cause stays wrapped inside for logs.
var (
	// ErrGeneration marks a failed document generation: provider
	// failure, empty output, or output breaking the content contract.
	ErrGeneration = errors.New("document generation failed")

	// ErrMaintenance marks a failed document update or audit, other
	// than a not-found or version-conflict passthrough.
	ErrMaintenance = errors.New("document maintenance failed")

	// ErrEmptyOutput reports that the model returned no usable text.
	ErrEmptyOutput = errors.New("model returned empty output")

	// ErrOutputTooLarge reports model output exceeding the stored
	// content bound.
	ErrOutputTooLarge = errors.New("model output exceeds size limit")

	// ErrMalformedOutput reports output missing required structure,
	// such as a markdown heading or parseable audit findings.
	ErrMalformedOutput = errors.New("model output is malformed")

	// ErrEmptySource rejects generation requests without source text.
	ErrEmptySource = errors.New("source text is required")

	// ErrEmptyInstruction rejects updates without an instruction.
	ErrEmptyInstruction = errors.New("update instruction is required")

	// ErrInstructionTooLong rejects instructions over MaxInstructionLength.
	ErrInstructionTooLong = errors.New("update instruction too long")
)
