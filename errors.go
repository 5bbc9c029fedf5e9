package vbforge

import "errors"

// Input validation failures. These are reported to the caller before
// any stage work begins and are never retried.
var (
	ErrMissingInput     = errors.New("provide either a ZIP archive or a GitHub repository link")
	ErrAmbiguousInput   = errors.New("provide a ZIP archive or a GitHub repository link, not both")
	ErrPayloadTooLarge  = errors.New("uploaded archive exceeds the size limit")
	ErrPathTraversal    = errors.New("path traversal detected in ZIP file")
	ErrCorruptArchive   = errors.New("invalid or corrupted ZIP file")
	ErrUntrustedSource  = errors.New("repository host is not allowed")
	ErrInvalidReference = errors.New("invalid GitHub repository URL")
	ErrFetchFailed      = errors.New("failed to clone repository")
	ErrNoInputFound     = errors.New("no VB6 files (.frm, .bas, .cls, .vbp) found")
)

// Stage-fatal failures. Any of these aborts the remaining pipeline.
var (
	ErrProjectValidation = errors.New("generated project validation failed")
	ErrEmptyArtifact     = errors.New("generated ZIP file is empty or missing")
	ErrTimeout           = errors.New("conversion process timed out")
)

// IsInputError reports whether err belongs to the input validation
// family, which maps to a caller error rather than a server fault.
func IsInputError(err error) bool {
	for _, target := range []error{
		ErrMissingInput,
		ErrAmbiguousInput,
		ErrPayloadTooLarge,
		ErrPathTraversal,
		ErrCorruptArchive,
		ErrUntrustedSource,
		ErrInvalidReference,
		ErrFetchFailed,
		ErrNoInputFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
