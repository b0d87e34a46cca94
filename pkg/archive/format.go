// Package archive implements the dual-sink streaming container the handler
// writes one crash into: a gzip-compressed file holding the raw core image
// alongside small auxiliary members (the pre/post-stream context records).
//
// The container is not POSIX tar. The core is read from a forward-only,
// size-unknown pipe, so it is framed as a chunked member (length-prefixed
// chunks terminated by a zero-length chunk) while auxiliary members, whose
// size is always known up front, are framed as a single length-prefixed
// blob. Both kinds live in the same sequential member list so an inspection
// tool can walk them without seeking.
package archive

import "errors"

// magic identifies the container format at the start of the gzip payload.
const magic = "CDAR"

const formatVersion = 1

// scratchSize is the size of the read-ahead buffer used by MoveAhead and
// ReadAll, matching the page-sized scratch buffer of the reference parser.
const scratchSize = 128 << 10

// kind tags how a member's payload is framed.
type kind uint8

const (
	kindBlob    kind = 1 // single length-prefixed payload, size known up front
	kindChunked kind = 2 // sequence of length-prefixed chunks, zero-length terminates
)

// CoreMemberName is the name under which the streamed core image is stored.
const CoreMemberName = "core"

var (
	// ErrBackwards is returned by MoveToOffset when the target precedes the
	// current input offset; the stream is forward-only and cannot rewind.
	ErrBackwards = errors.New("archive: target offset precedes current offset")

	// ErrShortRead is returned when fewer bytes than requested were
	// available from the input stream.
	ErrShortRead = errors.New("archive: short read from input stream")

	// ErrBadMagic is returned by the reader when the container header does
	// not match the expected magic/version.
	ErrBadMagic = errors.New("archive: bad container magic or version")

	// ErrNoCoreOpen is returned by Read/MoveAhead/MoveToOffset/ReadAll when
	// called before StreamOpen.
	ErrNoCoreOpen = errors.New("archive: no input stream attached")

	// ErrFileInProgress is returned by CreateFile when a prior CreateFile
	// was never finished with FinishFile.
	ErrFileInProgress = errors.New("archive: previous member not finished")

	// ErrNoFileInProgress is returned by WriteFile/FinishFile when no
	// CreateFile is currently open.
	ErrNoFileInProgress = errors.New("archive: no member in progress")
)
