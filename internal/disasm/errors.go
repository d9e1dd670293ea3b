package disasm

import "errors"

// Failures intrinsic to exploring one address are absorbed into graph
// or listing shape by their callers; these sentinels surface the ones
// the caller must act on.
var (
	// ErrUnresolvedAddress marks an address with no covering section.
	ErrUnresolvedAddress = errors.New("address not covered by any section")

	// ErrNotExecutable marks a valid address whose section holds data
	// while the operation requires code.
	ErrNotExecutable = errors.New("address not in an executable section")

	// ErrSymbolNotFound marks a symbolic lookup that failed after all
	// fallback names.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrBadWordSize marks an array read with an unsupported element
	// width.
	ErrBadWordSize = errors.New("word size must be 1, 2, 4 or 8")
)
