//go:build amd64 && (darwin || linux)

package hook

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

const (
	// JMP QWORD PTR [RIP+0] followed by the 8 byte destination
	absJumpLen = 14
	// JMP rel32
	relJumpLen = 5
	// longest prologue we may need: patch length plus one maximal instruction
	maxPrologue = absJumpLen + 15
	// the near stub jumping on to the replacement, rounded up
	stubLen = 16
)

var endbr64 = []byte{0xf3, 0x0f, 0x1e, 0xfa}

// condition codes of the Jcc family, as in 0x70+cc and 0x0f 0x80+cc
var jccCodes = map[x86asm.Op]byte{
	x86asm.JO: 0x0, x86asm.JNO: 0x1, x86asm.JB: 0x2, x86asm.JAE: 0x3,
	x86asm.JE: 0x4, x86asm.JNE: 0x5, x86asm.JBE: 0x6, x86asm.JA: 0x7,
	x86asm.JS: 0x8, x86asm.JNS: 0x9, x86asm.JP: 0xa, x86asm.JNP: 0xb,
	x86asm.JL: 0xc, x86asm.JGE: 0xd, x86asm.JLE: 0xe, x86asm.JG: 0xf,
}

func absJump(dest uintptr) []byte {
	code := make([]byte, absJumpLen)
	code[0], code[1] = 0xff, 0x25
	binary.LittleEndian.PutUint64(code[6:], uint64(dest))
	return code
}

// CALL QWORD PTR [RIP+2]; JMP +8; destination
func absCall(dest uintptr) []byte {
	code := []byte{0xff, 0x15, 0x02, 0, 0, 0, 0xeb, 0x08}
	return binary.LittleEndian.AppendUint64(code, uint64(dest))
}

// rel32 is the displacement from the end of an instruction at pc of length
// n to dest, if it fits.
func rel32(pc uintptr, n int, dest uintptr) ([]byte, bool) {
	d := int64(dest) - int64(pc+uintptr(n))
	if d != int64(int32(d)) {
		return nil, false
	}
	return binary.LittleEndian.AppendUint32(nil, uint32(int32(d))), true
}

// jumpTo jumps from pc to dest, with a rel32 jump when near allows it.
func jumpTo(pc, dest uintptr, near bool) []byte {
	if near {
		if d, ok := rel32(pc, relJumpLen, dest); ok {
			return append([]byte{0xe9}, d...)
		}
	}
	return absJump(dest)
}

func relArg(inst x86asm.Inst) (x86asm.Rel, bool) {
	for _, arg := range inst.Args {
		if rel, ok := arg.(x86asm.Rel); ok {
			return rel, true
		}
	}
	return 0, false
}

func ripArg(inst x86asm.Inst) (x86asm.Mem, bool) {
	for _, arg := range inst.Args {
		if mem, ok := arg.(x86asm.Mem); ok && mem.Base == x86asm.RIP {
			return mem, true
		}
	}
	return x86asm.Mem{}, false
}

// padding reports the length of the filler instruction at the start of code,
// or 0 if it is real code.
func padding(code []byte) int {
	if len(code) == 0 {
		return 0
	}
	if code[0] == 0xcc || code[0] == 0x90 {
		return 1
	}
	inst, err := x86asm.Decode(code, 64)
	if err != nil || inst.Op != x86asm.NOP {
		return 0
	}
	return inst.Len
}

// relocateBranch rewrites a relative branch to dest for its new home at pc.
func relocateBranch(inst x86asm.Inst, pc, dest uintptr, near bool) ([]byte, error) {
	switch inst.Op {
	case x86asm.JMP:
		return jumpTo(pc, dest, near), nil
	case x86asm.CALL:
		if near {
			if d, ok := rel32(pc, 5, dest); ok {
				return append([]byte{0xe8}, d...), nil
			}
		}
		return absCall(dest), nil
	}

	cc, ok := jccCodes[inst.Op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRelativeAddr, inst)
	}
	if near {
		if d, ok := rel32(pc, 6, dest); ok {
			return append([]byte{0x0f, 0x80 | cc}, d...), nil
		}
	}
	// inverted short Jcc over an absolute jump
	return append([]byte{0x70 | (cc ^ 1), absJumpLen}, absJump(dest)...), nil
}

// relocateRIP rewrites an instruction addressing memory relative to RIP.
// LEA becomes MOV r64, imm64; anything else keeps its encoding with a new
// displacement, which needs the trampoline within rel32 reach.
func relocateRIP(inst x86asm.Inst, raw []byte, pc, dest uintptr, near bool) ([]byte, error) {
	if reg, ok := inst.Args[0].(x86asm.Reg); ok && inst.Op == x86asm.LEA && x86asm.RAX <= reg && reg <= x86asm.R15 {
		n := byte(reg - x86asm.RAX)
		code := []byte{0x48 | n>>3, 0xb8 | n&7}
		return binary.LittleEndian.AppendUint64(code, uint64(dest)), nil
	}
	if !near || inst.PCRel != 4 {
		return nil, fmt.Errorf("%w: %s", ErrRelativeAddr, inst)
	}
	d, ok := rel32(pc, len(raw), dest)
	if !ok {
		return nil, fmt.Errorf("%w: %s out of reach", ErrRelativeAddr, inst)
	}
	code := append([]byte(nil), raw...)
	copy(code[inst.PCRelOff:], d)
	return code, nil
}

// relocate copies whole instructions from code, which lives at src, until at
// least size bytes are covered, rewriting them to run from dst. It returns
// the trampoline body, including the jump back, and the number of bytes
// covered. Bytes past an unconditional jump or return must be padding.
func relocate(code []byte, src, dst uintptr, size int, near bool) ([]byte, int, error) {
	var (
		out   []byte
		n     int
		ended bool
	)
	for n < size {
		rest := code[n:]
		if ended {
			pad := padding(rest)
			if pad == 0 {
				return nil, 0, fmt.Errorf("%w: code at +%d follows the end", ErrFunctionTooShort, n)
			}
			n += pad
			continue
		}
		if bytes.HasPrefix(rest, endbr64) {
			out = append(out, endbr64...)
			n += len(endbr64)
			continue
		}

		inst, err := x86asm.Decode(rest, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("decode at +%d: %w", n, err)
		}
		raw := rest[:inst.Len]
		pc := dst + uintptr(len(out))
		next := src + uintptr(n+inst.Len)

		var frag []byte
		switch {
		case inst.Op == x86asm.INT || inst.Op == x86asm.UD2:
			return nil, 0, fmt.Errorf("%w: %s at +%d", ErrFunctionTooShort, inst, n)
		case inst.Op == x86asm.LCALL || inst.Op == x86asm.LJMP:
			return nil, 0, fmt.Errorf("%w: %s at +%d", ErrRelativeAddr, inst, n)
		default:
			if rel, ok := relArg(inst); ok {
				frag, err = relocateBranch(inst, pc, next+uintptr(int64(rel)), near)
			} else if mem, ok := ripArg(inst); ok {
				frag, err = relocateRIP(inst, raw, pc, next+uintptr(mem.Disp), near)
			} else {
				frag = raw
			}
			if err != nil {
				return nil, 0, fmt.Errorf("%w at +%d", err, n)
			}
		}
		out = append(out, frag...)
		n += inst.Len

		switch inst.Op {
		case x86asm.JMP, x86asm.RET, x86asm.LRET:
			ended = true
		}
	}
	if !ended {
		out = append(out, jumpTo(dst+uintptr(len(out)), src+uintptr(n), near)...)
	}
	return out, n, nil
}

func install(target, replacement uintptr) (*Guard, Trampoline, error) {
	page, near, err := allocPage(target)
	if err != nil {
		return nil, 0, err
	}
	g, tramp, err := installAt(target, replacement, page, near)
	if err != nil {
		_ = freePage(page)
	}
	return g, tramp, err
}

// installAt builds the trampoline in the writable page and redirects target.
// When near, target gets a 5 byte jump to a stub at the start of page which
// jumps on to replacement; otherwise target jumps to replacement directly.
func installAt(target, replacement, page uintptr, near bool) (*Guard, Trampoline, error) {
	size, entry := absJumpLen, page
	if near {
		size, entry = relJumpLen, page+stubLen
	}

	head := RawMemoryAccess(target, maxPrologue)
	code, n, err := relocate(head, target, entry, size, near)
	if err != nil {
		return nil, 0, err
	}
	if uintptr(stubLen+len(code)) > pageSize {
		return nil, 0, fmt.Errorf("%w: trampoline of %d bytes", ErrFunctionTooShort, len(code))
	}

	original := make([]byte, n)
	copy(original, head[:n])

	patched := absJump(replacement)
	if near {
		copy(RawMemoryAccess(page, absJumpLen), patched)
		patched = jumpTo(target, page, true)
	}
	copy(RawMemoryAccess(entry, len(code)), code)
	if err := sealPage(page); err != nil {
		return nil, 0, err
	}

	if len(patched) > n {
		return nil, 0, fmt.Errorf("%w: %d byte patch over %d bytes", ErrFunctionTooShort, len(patched), n)
	}
	for len(patched) < n {
		patched = append(patched, 0xcc)
	}
	if err := CopyToLocation(target, patched); err != nil {
		return nil, 0, err
	}

	return &Guard{
		target:      target,
		replacement: replacement,
		original:    original,
		patched:     patched,
	}, Trampoline(entry), nil
}
