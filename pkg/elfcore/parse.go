package elfcore

import (
	"encoding/binary"

	"github.com/opencrash/crashmgr/pkg/archive"
)

// Result is everything the parser recovered from one core image, handed to
// pkg/fingerprint to derive CrashID/VectorID.
type Result struct {
	Registers Registers

	ElfVMAPageSize uint64

	IPOffsetKnown bool
	IPOffset      uint64
	IPModule      string

	// RAKnown is true iff the return-address candidate (rbp+8 on x86-64,
	// lr directly on aarch64) falls within some PT_LOAD segment, i.e. a
	// return-address value could actually be obtained.
	RAKnown bool
	RA      uint64

	RAOffsetKnown bool
	RAOffset      uint64
	RAModule      string
}

// Parse drives ar through the streaming probes: ELF header, program
// headers, the PT_NOTE segment, register extraction and NT_FILE lookups for
// the instruction pointer and return address. It stops there and leaves the
// remaining core bytes unread.
//
// The caller must call ar.ReadAll() itself after Parse returns — Parse only
// performs the probes that require forward reads ahead of the bulk of the
// core, per the no-regression rule: the return-address probe must occur
// before ReadAll.
func Parse(ar *archive.Archive, arch Arch) (Result, error) {
	var res Result

	ehdrBuf, err := readExact(ar, ehdr64Size)
	if err != nil {
		return res, err
	}
	ehdr, err := decodeEhdr(ehdrBuf)
	if err != nil {
		return res, err
	}

	if err := ar.MoveToOffset(ehdr.Phoff); err != nil {
		return res, err
	}
	phdrs := make([]phdr64, ehdr.Phnum)
	for i := range phdrs {
		buf, err := readExact(ar, phdr64Size)
		if err != nil {
			return res, err
		}
		p, err := decodePhdr(buf)
		if err != nil {
			return res, err
		}
		phdrs[i] = p
	}

	noteOff, noteSize, found := findNoteSegment(phdrs)
	if !found {
		return res, ErrNoNotes
	}

	if err := ar.MoveToOffset(noteOff); err != nil {
		return res, err
	}
	notes, err := readExact(ar, int(noteSize))
	if err != nil {
		return res, err
	}

	regs, err := findRegisters(arch, notes)
	if err != nil {
		return res, err
	}
	res.Registers = regs

	pageSize, ok := findPageSize(notes)
	if ok {
		res.ElfVMAPageSize = pageSize
	}

	// Return-address probe. Must happen before the bulk ReadAll since the
	// stream cannot rewind once it has advanced past this point.
	var ra uint64
	var raKnown bool
	switch arch {
	case ArchX86_64:
		// The return address lives at [rbp+8]; translate that virtual
		// address through its owning PT_LOAD and read it off the stream.
		raddr := regs.RA + 8
		if phdr, ok := findLoadSegment(phdrs, raddr); ok {
			fileOff := phdr.Offset + (raddr - phdr.Vaddr)
			if err := ar.MoveToOffset(fileOff); err != nil {
				return res, err
			}
			buf, err := readExact(ar, 8)
			if err != nil {
				return res, err
			}
			ra = binary.LittleEndian.Uint64(buf)
			raKnown = true
		}
	case ArchAArch64:
		// lr is the return address directly; no memory read is needed, but
		// it must still resolve to a mapped PT_LOAD to count as known.
		if _, ok := findLoadSegment(phdrs, regs.RA); ok {
			ra = regs.RA
			raKnown = true
		}
	}
	res.RA = ra
	res.RAKnown = raKnown

	if raKnown {
		if region, ok := findFileRegion(notes, ra); ok {
			res.RAOffsetKnown = true
			res.RAOffset = ra - region.VaddrStart + region.FileOffsetPage*res.ElfVMAPageSize
			res.RAModule = region.ModuleName
		}
	}

	if region, ok := findFileRegion(notes, regs.IP); ok {
		res.IPOffsetKnown = true
		res.IPOffset = regs.IP - region.VaddrStart + region.FileOffsetPage*res.ElfVMAPageSize
		res.IPModule = region.ModuleName
	}

	return res, nil
}

func findNoteSegment(phdrs []phdr64) (offset uint64, size uint64, found bool) {
	for _, p := range phdrs {
		if p.Type == ptNote {
			return p.Offset, p.Filesz, true
		}
	}
	return 0, 0, false
}

func findLoadSegment(phdrs []phdr64, addr uint64) (phdr64, bool) {
	for _, p := range phdrs {
		if p.Type == ptLoad && addr >= p.Vaddr && addr < p.Vaddr+p.Memsz {
			return p, true
		}
	}
	return phdr64{}, false
}

// findRegisters walks the notes buffer for the first NT_PRSTATUS note.
func findRegisters(arch Arch, notes []byte) (Registers, error) {
	offset := uint32(0)
	for offset < uint32(len(notes)) {
		n, err := decodeNhdr(notes[offset:])
		if err != nil {
			return Registers{}, err
		}
		total := noteTotalSize(n)
		if offset+total > uint32(len(notes)) {
			return Registers{}, ErrNoteParseFailed
		}
		if n.Type == ntPRStatus {
			descOff := offset + nhdrSize + align4(n.Namesz)
			desc := notes[descOff : descOff+n.Descsz]
			return extractRegisters(arch, desc)
		}
		offset += total
	}
	return Registers{}, ErrNoPRStatus
}

// findPageSize walks the notes buffer for the first NT_FILE note and
// returns its page_size field.
func findPageSize(notes []byte) (uint64, bool) {
	offset := uint32(0)
	for offset < uint32(len(notes)) {
		n, err := decodeNhdr(notes[offset:])
		if err != nil {
			return 0, false
		}
		total := noteTotalSize(n)
		if offset+total > uint32(len(notes)) {
			return 0, false
		}
		if n.Type == ntFile {
			descOff := offset + nhdrSize + align4(n.Namesz)
			desc := notes[descOff : descOff+n.Descsz]
			if len(desc) < 16 {
				return 0, false
			}
			return binary.LittleEndian.Uint64(desc[8:16]), true
		}
		offset += total
	}
	return 0, false
}

// findFileRegion walks the first NT_FILE note's region table for the entry
// containing addr, resolving its module name from the string table that
// follows the table.
func findFileRegion(notes []byte, addr uint64) (NtFileRegion, bool) {
	offset := uint32(0)
	for offset < uint32(len(notes)) {
		n, err := decodeNhdr(notes[offset:])
		if err != nil {
			return NtFileRegion{}, false
		}
		total := noteTotalSize(n)
		if offset+total > uint32(len(notes)) {
			return NtFileRegion{}, false
		}
		if n.Type == ntFile {
			descOff := offset + nhdrSize + align4(n.Namesz)
			desc := notes[descOff : descOff+n.Descsz]
			return scanFileRegions(desc, addr)
		}
		offset += total
	}
	return NtFileRegion{}, false
}

// scanFileRegions implements the NT_FILE layout: num_regions, page_size,
// then num_regions triples of {start,end,file_offset_pages}, then a
// null-terminated string table naming each region in order.
func scanFileRegions(desc []byte, addr uint64) (NtFileRegion, bool) {
	if len(desc) < 16 {
		return NtFileRegion{}, false
	}
	numRegions := binary.LittleEndian.Uint64(desc[0:8])

	const tripleSize = 24 // start(8) + end(8) + file_offset_pages(8)
	tablesEnd := 16 + numRegions*tripleSize
	if uint64(len(desc)) < tablesEnd {
		return NtFileRegion{}, false
	}
	strTab := desc[tablesEnd:]

	pos := desc[16:tablesEnd]
	for i := uint64(0); i < numRegions; i++ {
		row := pos[i*tripleSize : (i+1)*tripleSize]
		start := binary.LittleEndian.Uint64(row[0:8])
		end := binary.LittleEndian.Uint64(row[8:16])
		fileOffPages := binary.LittleEndian.Uint64(row[16:24])

		if addr >= start && addr < end {
			name := nthString(strTab, i)
			return NtFileRegion{
				VaddrStart:     start,
				VaddrEnd:       end,
				FileOffsetPage: fileOffPages,
				ModuleName:     name,
			}, true
		}
	}
	return NtFileRegion{}, false
}

// nthString returns the nth (0-indexed) null-terminated string in tab.
func nthString(tab []byte, n uint64) string {
	pos := 0
	for i := uint64(0); i < n; i++ {
		for pos < len(tab) && tab[pos] != 0 {
			pos++
		}
		pos++ // skip the terminator
	}
	end := pos
	for end < len(tab) && tab[end] != 0 {
		end++
	}
	if pos > len(tab) {
		return ""
	}
	return string(tab[pos:end])
}
