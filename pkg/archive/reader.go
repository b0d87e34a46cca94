package archive

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Member describes one entry discovered while walking an archive: its
// name and, for blob members, its declared size (chunked members, i.e.
// the core, report Size as -1 since it is unknown until fully drained).
type Member struct {
	Name string
	Size int64
	kind kind
}

// Reader walks the sequential member list of an archive written by
// Archive. It is forward-only, like the writer: Next advances past
// whatever of the current member's payload the caller did not consume.
type Reader struct {
	gz     io.Reader
	closer io.Closer
	cur    *Member
	curPos int64 // bytes already yielded from cur's payload

	chunkLeft    uint32 // bytes left in the chunk currently being read
	curChunkDone bool   // true once the chunked member's zero-length terminator was seen
}

// Open opens path for reading and validates the container header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: cannot open %s: %w", path, err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("archive: cannot open gzip stream in %s: %w", path, err)
	}

	r := &Reader{gz: gz, closer: f}
	if err := r.checkHeader(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) checkHeader() error {
	got := make([]byte, len(magic))
	if _, err := io.ReadFull(r.gz, got); err != nil {
		return fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if string(got) != magic {
		return ErrBadMagic
	}
	var version uint32
	if err := binary.Read(r.gz, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if version != formatVersion {
		return fmt.Errorf("%w: version %d", ErrBadMagic, version)
	}
	return nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Next advances to the next member, skipping any unread payload of the
// current one. It returns io.EOF when the archive is exhausted.
func (r *Reader) Next() (*Member, error) {
	if r.cur != nil {
		if err := r.skipRemaining(); err != nil {
			return nil, err
		}
	}

	var nameLen uint16
	if err := binary.Read(r.gz, binary.LittleEndian, &nameLen); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("archive: reading member header: %w", err)
	}

	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(r.gz, nameBuf); err != nil {
		return nil, fmt.Errorf("archive: reading member name: %w", err)
	}

	var k uint8
	if err := binary.Read(r.gz, binary.LittleEndian, &k); err != nil {
		return nil, fmt.Errorf("archive: reading member kind: %w", err)
	}

	m := &Member{Name: string(nameBuf), kind: kind(k)}
	if m.kind == kindBlob {
		var size uint64
		if err := binary.Read(r.gz, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("archive: reading member size: %w", err)
		}
		m.Size = int64(size)
	} else {
		m.Size = -1
	}

	r.cur = m
	r.curPos = 0
	r.chunkLeft = 0
	r.curChunkDone = false
	return m, nil
}

// Read reads from the current member's payload, returning io.EOF once the
// member is exhausted (its declared size for a blob, or its terminating
// zero-length chunk for the chunked core member).
func (r *Reader) Read(p []byte) (int, error) {
	if r.cur == nil {
		return 0, fmt.Errorf("archive: Read called before Next")
	}
	if r.cur.kind == kindBlob {
		return r.readBlob(p)
	}
	return r.readChunked(p)
}

func (r *Reader) readBlob(p []byte) (int, error) {
	remaining := r.cur.Size - r.curPos
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := r.gz.Read(p)
	r.curPos += int64(n)
	return n, err
}

func (r *Reader) readChunked(p []byte) (int, error) {
	if r.chunkClosed() {
		return 0, io.EOF
	}
	if r.chunkLeft == 0 {
		var n uint32
		if err := binary.Read(r.gz, binary.LittleEndian, &n); err != nil {
			return 0, fmt.Errorf("archive: reading chunk length: %w", err)
		}
		if n == 0 {
			r.curChunkDone = true
			return 0, io.EOF
		}
		r.chunkLeft = n
	}
	if uint32(len(p)) > r.chunkLeft {
		p = p[:r.chunkLeft]
	}
	n, err := r.gz.Read(p)
	r.chunkLeft -= uint32(n)
	r.curPos += int64(n)
	return n, err
}

func (r *Reader) chunkClosed() bool {
	return r.curChunkDone
}

// skipRemaining drains whatever payload of the current member the caller
// did not read, so Next can find the following member header.
func (r *Reader) skipRemaining() error {
	buf := make([]byte, 64<<10)
	for {
		_, err := r.Read(buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
