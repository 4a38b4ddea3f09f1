package basic

import "errors"

// Database error kinds surfaced by the page and undo core. Success is a nil
// error. Callers discriminate with errors.Is so the kinds survive wrapping.
var (
	// ErrFail means an optimistic path could not proceed; the caller is
	// expected to escalate to the pessimistic path.
	ErrFail = errors.New("operation failed, retry pessimistically")

	// ErrOutOfFileSpace is returned when the file-space allocator cannot
	// extend the tablespace.
	ErrOutOfFileSpace = errors.New("out of file space")

	// ErrOverflow means an updated record no longer fits on its page.
	ErrOverflow = errors.New("record update overflows page")

	// ErrUnderflow means an update would shrink the page below the merge
	// threshold.
	ErrUnderflow = errors.New("record update underflows page")

	// ErrCorruption is returned by validation when a page fails its
	// structural checks.
	ErrCorruption = errors.New("page corruption detected")

	// ErrRecordNotFound is returned by searches that require presence.
	ErrRecordNotFound = errors.New("record not found")
)
