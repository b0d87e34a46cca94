package elfcore

import "encoding/binary"

// prstatusRegsOffset is the byte offset of pr_reg within struct
// elf_prstatus, counting from the start of the descriptor: pr_info (12) +
// pr_cursig (2) + 2 bytes of alignment padding + pr_sigpend (8) +
// pr_sighold (8) + pr_pid/pr_ppid/pr_pgrp/pr_sid (4 each) + pr_utime/
// pr_stime/pr_cutime/pr_cstime (16 each). This layout is identical on
// x86-64 and aarch64; only the register array that follows differs.
const prstatusRegsOffset = 112

// Register-array slot indices, taken from the kernel's user_regs_struct
// (x86-64) and user_pt_regs (aarch64) layouts that back elf_gregset_t.
const (
	x86RegRBP = 4
	x86RegRIP = 16

	aarch64RegLR = 30
	aarch64RegPC = 32
)

// extractRegisters reads the architecture-specific register pair out of an
// NT_PRSTATUS descriptor.
func extractRegisters(arch Arch, desc []byte) (Registers, error) {
	var ipIdx, raIdx int
	switch arch {
	case ArchX86_64:
		ipIdx, raIdx = x86RegRIP, x86RegRBP
	case ArchAArch64:
		ipIdx, raIdx = aarch64RegPC, aarch64RegLR
	default:
		return Registers{}, ErrMalformedELF
	}

	ipOff := prstatusRegsOffset + ipIdx*8
	raOff := prstatusRegsOffset + raIdx*8
	if len(desc) < ipOff+8 || len(desc) < raOff+8 {
		return Registers{}, ErrNoteParseFailed
	}

	return Registers{
		IP: binary.LittleEndian.Uint64(desc[ipOff : ipOff+8]),
		RA: binary.LittleEndian.Uint64(desc[raOff : raOff+8]),
	}, nil
}
