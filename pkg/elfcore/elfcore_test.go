package elfcore

import (
	"bytes"
	"encoding/binary"
	"io"
	"path/filepath"
	"testing"

	"github.com/opencrash/crashmgr/pkg/archive"
)

// buildCoreX86_64 assembles a minimal, syntactically valid x86-64 ELF core image:
// an ELF header, two program headers (PT_NOTE and one PT_LOAD covering the
// stack region so the return-address probe resolves), a PT_NOTE segment
// holding one NT_PRSTATUS and one NT_FILE note, and filler bytes for the
// PT_LOAD payload and everything after.
func buildCoreX86_64(t *testing.T, rip, rbp uint64) []byte {
	t.Helper()

	const (
		phOff    = ehdr64Size
		numPhdrs = 2
	)

	notes := buildNotesX86_64(rip, rbp)
	noteOff := uint64(phOff + numPhdrs*phdr64Size)

	// PT_LOAD covers the stack address rbp+8 so the return-address probe
	// can translate it to a file offset; its backing bytes hold the 8-byte
	// word the probe reads back (an arbitrary but fixed "return address").
	loadVaddr := rbp &^ 0xfff
	loadFileOff := noteOff + uint64(len(notes))
	loadSize := uint64(4096)

	buf := &bytes.Buffer{}

	ehdr := make([]byte, ehdr64Size)
	ehdr[0], ehdr[1], ehdr[2], ehdr[3] = elfMagic0, elfMagic1, elfMagic2, elfMagic3
	ehdr[4] = elfClass64
	binary.LittleEndian.PutUint64(ehdr[32:40], uint64(phOff))
	binary.LittleEndian.PutUint16(ehdr[56:58], uint16(numPhdrs))
	buf.Write(ehdr)

	writePhdr(buf, phdr64{Type: ptNote, Offset: noteOff, Filesz: uint64(len(notes))})
	writePhdr(buf, phdr64{Type: ptLoad, Offset: loadFileOff, Vaddr: loadVaddr, Filesz: loadSize, Memsz: loadSize})

	buf.Write(notes)

	loadData := make([]byte, loadSize)
	retAddrOffsetInSegment := (rbp + 8) - loadVaddr
	binary.LittleEndian.PutUint64(loadData[retAddrOffsetInSegment:retAddrOffsetInSegment+8], 0x402222)
	buf.Write(loadData)

	return buf.Bytes()
}

func writePhdr(buf *bytes.Buffer, p phdr64) {
	row := make([]byte, phdr64Size)
	binary.LittleEndian.PutUint32(row[0:4], p.Type)
	binary.LittleEndian.PutUint32(row[4:8], p.Flags)
	binary.LittleEndian.PutUint64(row[8:16], p.Offset)
	binary.LittleEndian.PutUint64(row[16:24], p.Vaddr)
	binary.LittleEndian.PutUint64(row[24:32], p.Paddr)
	binary.LittleEndian.PutUint64(row[32:40], p.Filesz)
	binary.LittleEndian.PutUint64(row[40:48], p.Memsz)
	binary.LittleEndian.PutUint64(row[48:56], p.Align)
	buf.Write(row)
}

func buildNotesX86_64(rip, rbp uint64) []byte {
	buf := &bytes.Buffer{}

	// NT_PRSTATUS: name "CORE\0" padded to 4, descriptor holding the
	// prstatus header followed by a 27-register x86-64 array.
	prstatusDesc := make([]byte, prstatusRegsOffset+27*8)
	binary.LittleEndian.PutUint64(prstatusDesc[prstatusRegsOffset+x86RegRBP*8:], rbp)
	binary.LittleEndian.PutUint64(prstatusDesc[prstatusRegsOffset+x86RegRIP*8:], rip)
	writeNote(buf, ntPRStatus, "CORE", prstatusDesc)

	// NT_FILE: one region [0x400000, 0x410000) named "crashy", and a
	// second covering the stack page so the return-address lookup resolves
	// to a module name too.
	loadVaddr := rbp &^ 0xfff
	fileDesc := &bytes.Buffer{}
	binary.Write(fileDesc, binary.LittleEndian, uint64(2)) // num_regions
	binary.Write(fileDesc, binary.LittleEndian, uint64(1)) // page_size
	binary.Write(fileDesc, binary.LittleEndian, uint64(0x400000))
	binary.Write(fileDesc, binary.LittleEndian, uint64(0x410000))
	binary.Write(fileDesc, binary.LittleEndian, uint64(0))
	binary.Write(fileDesc, binary.LittleEndian, loadVaddr)
	binary.Write(fileDesc, binary.LittleEndian, loadVaddr+4096)
	binary.Write(fileDesc, binary.LittleEndian, uint64(0))
	fileDesc.WriteString("crashy\x00")
	fileDesc.WriteString("stack\x00")
	writeNote(buf, ntFile, "CORE", fileDesc.Bytes())

	return buf.Bytes()
}

func writeNote(buf *bytes.Buffer, noteType uint32, name string, desc []byte) {
	nameBytes := append([]byte(name), 0)
	namesz := uint32(len(nameBytes))

	hdr := make([]byte, nhdrSize)
	binary.LittleEndian.PutUint32(hdr[0:4], namesz)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(desc)))
	binary.LittleEndian.PutUint32(hdr[8:12], noteType)
	buf.Write(hdr)

	buf.Write(nameBytes)
	for uint32(len(nameBytes)) < align4(namesz) {
		buf.WriteByte(0)
		nameBytes = append(nameBytes, 0)
	}

	buf.Write(desc)
}

func TestParseX86_64HappyPath(t *testing.T) {
	core := buildCoreX86_64(t, 0x401234, 0x7ffffff0)

	dst := filepath.Join(t.TempDir(), "out.cdh")
	ar, err := archive.Open(dst)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ar.StreamOpenReader(bytes.NewReader(core))

	res, err := Parse(ar, ArchX86_64)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := ar.ReadAll(); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if err := ar.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if res.Registers.IP != 0x401234 {
		t.Fatalf("IP = %#x, want 0x401234", res.Registers.IP)
	}
	if res.Registers.RA != 0x7ffffff0 {
		t.Fatalf("RA (rbp) = %#x, want 0x7ffffff0", res.Registers.RA)
	}
	if !res.IPOffsetKnown {
		t.Fatalf("expected IP offset to resolve via NT_FILE")
	}
	if res.IPOffset != 0x1234 {
		t.Fatalf("IPOffset = %#x, want 0x1234", res.IPOffset)
	}
	if res.IPModule != "crashy" {
		t.Fatalf("IPModule = %q, want crashy", res.IPModule)
	}
	if !res.RAKnown {
		t.Fatalf("expected RA to resolve via the PT_LOAD covering rbp+8")
	}
	if res.RA != 0x402222 {
		t.Fatalf("resolved RA = %#x, want 0x402222", res.RA)
	}
	if !res.RAOffsetKnown {
		t.Fatalf("expected RA offset to resolve via NT_FILE")
	}
	if res.RAModule != "crashy" {
		t.Fatalf("RAModule = %q, want crashy", res.RAModule)
	}
	if res.RAOffset != 0x2222 {
		t.Fatalf("RAOffset = %#x, want 0x2222", res.RAOffset)
	}

	// Verify the core was still mirrored to the archive byte-for-byte
	// despite the forward probes.
	r, err := archive.Open(dst)
	if err != nil {
		t.Fatalf("reopening archive: %v", err)
	}
	defer r.Close()
	m, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if m.Name != archive.CoreMemberName {
		t.Fatalf("member = %q, want %q", m.Name, archive.CoreMemberName)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading mirrored core: %v", err)
	}
	if !bytes.Equal(got, core) {
		t.Fatalf("mirrored core does not match input (got %d bytes, want %d)", len(got), len(core))
	}
}

func TestParseNoNotesFails(t *testing.T) {
	ehdr := make([]byte, ehdr64Size)
	ehdr[0], ehdr[1], ehdr[2], ehdr[3] = elfMagic0, elfMagic1, elfMagic2, elfMagic3
	ehdr[4] = elfClass64
	binary.LittleEndian.PutUint64(ehdr[32:40], uint64(ehdr64Size))
	binary.LittleEndian.PutUint16(ehdr[56:58], 0)

	dst := filepath.Join(t.TempDir(), "out.cdh")
	ar, err := archive.Open(dst)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ar.Close()
	ar.StreamOpenReader(bytes.NewReader(ehdr))

	if _, err := Parse(ar, ArchX86_64); err != ErrNoNotes {
		t.Fatalf("err = %v, want ErrNoNotes", err)
	}
}
