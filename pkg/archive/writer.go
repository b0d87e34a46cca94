package archive

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/opencrash/crashmgr/pkg/bufpool"
)

// Archive is the handler's gzip output writer paired with a forward-only
// input reader. Every byte the parser observes from the input stream,
// whether via Read, MoveAhead or ReadAll, is written to the gzip sink
// exactly once and in order: this is the property the parser relies on to
// inspect ELF notes while still preserving the core verbatim.
type Archive struct {
	outFile *os.File
	out     *gzip.Writer

	in       io.Reader
	inCloser io.Closer
	inOffset uint64

	coreStarted  bool
	coreFinished bool

	fileInProgress bool
	fileRemaining  int64
}

// Open creates and truncates a gzip writer at the fastest compression level
// for dst, writing the container header immediately.
func Open(dst string) (*Archive, error) {
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("archive: cannot open output %s: %w", dst, err)
	}

	gz, err := gzip.NewWriterLevel(f, gzip.BestSpeed)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("archive: cannot create gzip writer: %w", err)
	}

	a := &Archive{outFile: f, out: gz}
	if err := a.writeHeader(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) writeHeader() error {
	if _, err := a.out.Write([]byte(magic)); err != nil {
		return fmt.Errorf("archive: cannot write header: %w", err)
	}
	return binary.Write(a.out, binary.LittleEndian, uint32(formatVersion))
}

// Close flushes and closes both sinks idempotently. If the core stream was
// opened but never drained to completion, its chunk sequence is terminated
// so the archive remains readable.
func (a *Archive) Close() error {
	if a.coreStarted && !a.coreFinished {
		_ = a.finishCore()
	}
	if a.fileInProgress {
		_ = a.FinishFile()
	}

	var err error
	if a.out != nil {
		if ferr := a.out.Flush(); ferr != nil {
			err = ferr
		}
		if cerr := a.out.Close(); cerr != nil && err == nil {
			err = cerr
		}
		a.out = nil
	}
	if a.outFile != nil {
		if cerr := a.outFile.Close(); cerr != nil && err == nil {
			err = cerr
		}
		a.outFile = nil
	}
	if a.inCloser != nil {
		_ = a.inCloser.Close()
		a.inCloser = nil
	}
	return err
}

// StreamOpen attaches the input stream. An empty path attaches the
// process's standard input, matching the handler's invocation contract.
func (a *Archive) StreamOpen(path string) error {
	if path == "" {
		a.in = os.Stdin
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: cannot open input %s: %w", path, err)
	}
	a.in = f
	a.inCloser = f
	return nil
}

// StreamOpenReader attaches an arbitrary reader as the input stream,
// primarily for tests that feed a synthetic core image.
func (a *Archive) StreamOpenReader(r io.Reader) {
	a.in = r
}

// InOffset returns the number of bytes forwarded from input to the gzip
// sink so far. It is monotonic non-decreasing.
func (a *Archive) InOffset() uint64 {
	return a.inOffset
}

func (a *Archive) ensureCore() error {
	if a.in == nil {
		return ErrNoCoreOpen
	}
	if a.coreStarted {
		return nil
	}
	if err := a.writeMemberHeader(CoreMemberName, kindChunked, 0); err != nil {
		return err
	}
	a.coreStarted = true
	return nil
}

// Read copies exactly n bytes from the input into buf, advancing the
// offset by n. A short read is a hard failure: the parser cannot recover
// from a truncated core mid-structure.
func (a *Archive) Read(buf []byte, n int) error {
	if err := a.ensureCore(); err != nil {
		return err
	}
	got, err := io.ReadFull(a.in, buf[:n])
	if got > 0 {
		if werr := a.writeChunk(buf[:got]); werr != nil {
			logWriteFailure(werr)
		}
		a.inOffset += uint64(got)
	}
	if err != nil || got != n {
		return fmt.Errorf("%w: wanted %d got %d: %v", ErrShortRead, n, got, err)
	}
	return nil
}

// MoveToOffset is equivalent to MoveAhead(target - InOffset()); it is an
// error to target a position behind the current offset since the stream
// cannot rewind.
func (a *Archive) MoveToOffset(target uint64) error {
	if target < a.inOffset {
		return fmt.Errorf("%w: target=%d current=%d", ErrBackwards, target, a.inOffset)
	}
	return a.MoveAhead(target - a.inOffset)
}

// MoveAhead reads n bytes into a scratch buffer, mirroring every byte to
// the gzip sink, and advances the offset by n.
func (a *Archive) MoveAhead(n uint64) error {
	if err := a.ensureCore(); err != nil {
		return err
	}
	scratch := bufpool.Get(scratchSize)
	defer bufpool.Put(scratch)

	remaining := n
	for remaining > 0 {
		chunk := uint64(len(scratch))
		if remaining < chunk {
			chunk = remaining
		}
		got, err := io.ReadFull(a.in, scratch[:chunk])
		if got > 0 {
			if werr := a.writeChunk(scratch[:got]); werr != nil {
				logWriteFailure(werr)
			}
			a.inOffset += uint64(got)
		}
		if err != nil {
			return fmt.Errorf("%w: moving ahead %d bytes: %v", ErrShortRead, n, err)
		}
		remaining -= chunk
	}
	return nil
}

// ReadAll drains the input stream to EOF, mirroring everything to the gzip
// sink, then terminates the core member's chunk sequence. This is always
// the last operation performed against the core stream.
func (a *Archive) ReadAll() error {
	if err := a.ensureCore(); err != nil {
		return err
	}
	scratch := bufpool.Get(scratchSize)
	defer bufpool.Put(scratch)

	for {
		got, err := a.in.Read(scratch)
		if got > 0 {
			if werr := a.writeChunk(scratch[:got]); werr != nil {
				logWriteFailure(werr)
			}
			a.inOffset += uint64(got)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = a.finishCore()
			return fmt.Errorf("archive: error draining input stream: %w", err)
		}
	}
	return a.finishCore()
}

func (a *Archive) finishCore() error {
	if a.coreFinished {
		return nil
	}
	a.coreFinished = true
	return a.writeChunkTerminator()
}

// CreateFile begins an auxiliary member of known size alongside the
// streamed core. Content is supplied via WriteFile and sealed with
// FinishFile.
func (a *Archive) CreateFile(name string, size int64) error {
	if a.fileInProgress {
		return ErrFileInProgress
	}
	if a.coreStarted && !a.coreFinished {
		if err := a.finishCore(); err != nil {
			return err
		}
	}
	if err := a.writeMemberHeader(name, kindBlob, size); err != nil {
		return err
	}
	a.fileInProgress = true
	a.fileRemaining = size
	return nil
}

// WriteFile appends bytes to the member opened by CreateFile.
func (a *Archive) WriteFile(p []byte) error {
	if !a.fileInProgress {
		return ErrNoFileInProgress
	}
	if int64(len(p)) > a.fileRemaining {
		return fmt.Errorf("archive: write exceeds declared size by %d bytes", int64(len(p))-a.fileRemaining)
	}
	if _, err := a.out.Write(p); err != nil {
		logWriteFailure(err)
		return nil
	}
	a.fileRemaining -= int64(len(p))
	return nil
}

// FinishFile seals the member opened by CreateFile.
func (a *Archive) FinishFile() error {
	if !a.fileInProgress {
		return ErrNoFileInProgress
	}
	a.fileInProgress = false
	if a.fileRemaining != 0 {
		return fmt.Errorf("archive: member sealed %d bytes short of declared size", a.fileRemaining)
	}
	return nil
}

func (a *Archive) writeMemberHeader(name string, k kind, size int64) error {
	if len(name) > 0xFFFF {
		return fmt.Errorf("archive: member name too long: %d bytes", len(name))
	}
	if err := binary.Write(a.out, binary.LittleEndian, uint16(len(name))); err != nil {
		return err
	}
	if _, err := a.out.Write([]byte(name)); err != nil {
		return err
	}
	if err := binary.Write(a.out, binary.LittleEndian, uint8(k)); err != nil {
		return err
	}
	if k == kindBlob {
		return binary.Write(a.out, binary.LittleEndian, uint64(size))
	}
	return nil
}

func (a *Archive) writeChunk(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if err := binary.Write(a.out, binary.LittleEndian, uint32(len(p))); err != nil {
		return err
	}
	_, err := a.out.Write(p)
	return err
}

func (a *Archive) writeChunkTerminator() error {
	return binary.Write(a.out, binary.LittleEndian, uint32(0))
}

// logWriteFailure swallows gzip write errors per the failure semantics of
// the reference implementation: a write failure is logged but never aborts
// the stream, since the archive is still finalized with whatever made it
// through.
func logWriteFailure(err error) {
	writeFailureHook(err)
}

// writeFailureHook is a package-level indirection so callers (the logger
// package, wired in by cmd/cdh) can observe gzip write failures without
// this package importing the logger and creating an import cycle risk.
var writeFailureHook = func(error) {}

// SetWriteFailureHook installs the callback invoked whenever a gzip write
// fails. Passing nil restores the no-op default.
func SetWriteFailureHook(fn func(error)) {
	if fn == nil {
		fn = func(error) {}
	}
	writeFailureHook = fn
}
