// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/kestrel-labs/rasm/diag"
	"github.com/kestrel-labs/rasm/profile"
)

func loadTestProfile(t *testing.T, name string) *profile.Profile {
	t.Helper()
	prof, err := profile.Load("../profiles/" + name + ".toml")
	if err != nil {
		t.Fatalf("loading profile %s: %v", name, err)
	}
	return prof
}

func assemble(t *testing.T, prof *profile.Profile, src string) (string, *diag.Sink) {
	t.Helper()
	sink := diag.New(nil)
	a := NewAssembler(prof, sink)
	prog, err := a.Assemble(strings.NewReader(src))
	if err != nil {
		return "", sink
	}

	segs := append([]Encoded(nil), prog.Segments...)
	sort.Slice(segs, func(i, j int) bool { return segs[i].Addr < segs[j].Addr })

	var b []byte
	for _, s := range segs {
		b = append(b, s.Bytes...)
	}

	out := make([]byte, len(b)*2)
	for i, j := 0, 0; i < len(b); i, j = i+1, j+2 {
		out[j+0] = hex[b[i]>>4]
		out[j+1] = hex[b[i]&0x0f]
	}
	return string(out), sink
}

func checkASM(t *testing.T, prof *profile.Profile, src, expected string) {
	t.Helper()
	got, sink := assemble(t, prof, src)
	if sink.HadErrors() {
		t.Fatalf("unexpected errors: %v", sink.Records())
	}
	if got != expected {
		t.Errorf("code mismatch\ngot:  %s\nwant: %s", got, expected)
	}
}

func checkASMError(t *testing.T, prof *profile.Profile, src string) {
	t.Helper()
	_, sink := assemble(t, prof, src)
	if !sink.HadErrors() {
		t.Errorf("expected an error, got none for:\n%s", src)
	}
}

// asmLines joins source lines with "\n", exactly as given. Tests build
// source this way rather than with indented raw strings so that a
// line's leading whitespace (which decides whether it opens with a
// label or not) is never at the mercy of editor indentation.
func asmLines(lines ...string) string {
	return strings.Join(lines, "\n")
}

func TestAddressingModes(t *testing.T) {
	prof := loadTestProfile(t, "6502")

	src := asmLines(
		" .ORG $8000",
		" LDA #$20",
		" LDA $20",
		" LDA $2000",
		" LDA $20,X",
		" LDA $2000,X",
	)
	checkASM(t, prof, src, "A920A520AD0020B520BD0020")
}

func TestLabelsAndBranches(t *testing.T) {
	prof := loadTestProfile(t, "6502")

	src := asmLines(
		" .ORG $8000",
		"loop LDA #$01",
		" BRA loop",
	)
	checkASM(t, prof, src, "A90180FC")
}

func TestEquateForwardReference(t *testing.T) {
	prof := loadTestProfile(t, "6502")

	src := asmLines(
		" .ORG $8000",
		" LDA #LIMIT",
		"LIMIT EQU $10",
	)
	checkASM(t, prof, src, "A910")
}

func TestDataDirectives(t *testing.T) {
	prof := loadTestProfile(t, "6502")

	src := asmLines(
		" .ORG $8000",
		" .BYTE $01, $02, $03",
		" .WORD $1234",
	)
	checkASM(t, prof, src, "0102033412")
}

func TestBigEndianWordOrder(t *testing.T) {
	prof := loadTestProfile(t, "6800")

	src := asmLines(
		" .ORG $8000",
		" .WORD $1234",
	)
	checkASM(t, prof, src, "1234")
}

func TestUndefinedSymbolIsError(t *testing.T) {
	prof := loadTestProfile(t, "6502")

	src := asmLines(
		" .ORG $8000",
		" LDA #UNDEFINED",
	)
	checkASMError(t, prof, src)
}

func TestDuplicateLabelIsError(t *testing.T) {
	prof := loadTestProfile(t, "6502")

	src := asmLines(
		" .ORG $8000",
		"loop LDA #$01",
		"loop LDA #$02",
	)
	checkASMError(t, prof, src)
}

func TestDefaultsToAddressZeroWithoutOrigin(t *testing.T) {
	prof := loadTestProfile(t, "6502")

	checkASM(t, prof, " LDA #$01", "A901")
}

func TestEndStopsAssembly(t *testing.T) {
	prof := loadTestProfile(t, "6502")

	src := asmLines(
		" .ORG $8000",
		" LDA #$01",
		" .END",
		" LDA #$02",
	)
	checkASM(t, prof, src, "A901")
}

func TestBranchOutOfRangeIsError(t *testing.T) {
	prof := loadTestProfile(t, "6502")

	lines := []string{" .ORG $8000", "loop BRA far"}
	for i := 0; i < 200; i++ {
		lines = append(lines, " NOP")
	}
	lines = append(lines, "far NOP")

	checkASMError(t, prof, asmLines(lines...))
}

func TestOperandOutOfRangeValidationRule(t *testing.T) {
	prof := loadTestProfile(t, "6502")

	src := asmLines(
		" .ORG $8000",
		" LDA #$1FF",
	)
	checkASMError(t, prof, src)
}

func TestOperandOutOfRangeUniversalCheck(t *testing.T) {
	prof := loadTestProfile(t, "6502")

	// STA/ABS has no profile-declared validation rule (the 6502
	// profile's rule only covers LDA/LDX/STA in IMM/ZPG/ZPX), so this
	// can only be caught by the unconditional, operand-size-based check.
	src := asmLines(
		" .ORG $8000",
		" STA $20000",
	)
	checkASMError(t, prof, src)
}

func TestDataValueOutOfRangeIsError(t *testing.T) {
	prof := loadTestProfile(t, "6502")

	src := asmLines(
		" .ORG $8000",
		" .BYTE $100",
	)
	checkASMError(t, prof, src)
}

func TestPass2RunsAfterPass1Error(t *testing.T) {
	prof := loadTestProfile(t, "6502")

	// "loop" is defined twice (a pass 1 error); pass 2 should still run
	// and report the unrelated undefined symbol reference below it,
	// rather than stopping after the pass 1 failure.
	src := asmLines(
		" .ORG $8000",
		"loop LDA #$01",
		"loop LDA #$02",
		" LDA #UNDEFINED",
	)
	_, sink := assemble(t, prof, src)
	if !sink.HadErrors() {
		t.Fatalf("expected errors, got none")
	}

	var sawDuplicate, sawUndefined bool
	for _, d := range sink.Records() {
		msg := d.String()
		if strings.Contains(msg, "loop") {
			sawDuplicate = true
		}
		if strings.Contains(msg, "UNDEFINED") {
			sawUndefined = true
		}
	}
	if !sawDuplicate {
		t.Errorf("expected a diagnostic about the duplicate label, got: %v", sink.Records())
	}
	if !sawUndefined {
		t.Errorf("expected pass 2 to still report the undefined symbol, got: %v", sink.Records())
	}
}

func TestDeviantLabelIsWarningNotError(t *testing.T) {
	prof := loadTestProfile(t, "6502")

	src := asmLines(
		" .ORG $8000",
		"9loop LDA #$01",
	)
	_, sink := assemble(t, prof, src)
	if sink.HadErrors() {
		t.Fatalf("unexpected errors: %v", sink.Records())
	}

	var sawWarning bool
	for _, d := range sink.Records() {
		if strings.Contains(d.String(), "does not conform") {
			sawWarning = true
		}
	}
	if !sawWarning {
		t.Errorf("expected a warning about the deviant label, got: %v", sink.Records())
	}
}

func TestEquateReferencingLabel(t *testing.T) {
	prof := loadTestProfile(t, "6502")

	src := asmLines(
		" .ORG $8000",
		"here NOP",
		"alias EQU here",
	)
	checkASM(t, prof, src, "EA")
}

func TestByteStringHexFormatting(t *testing.T) {
	got := byteString([]byte{0x01, 0xAB, 0xFF})
	want := "01 AB FF"
	if got != want {
		t.Errorf("byteString mismatch: got %q want %q", got, want)
	}
}

func TestPackBytesEndianness(t *testing.T) {
	little := packBytes(profile.Little, 2, 0x1234)
	if !bytes.Equal(little, []byte{0x34, 0x12}) {
		t.Errorf("little-endian pack mismatch: %X", little)
	}
	big := packBytes(profile.Big, 2, 0x1234)
	if !bytes.Equal(big, []byte{0x12, 0x34}) {
		t.Errorf("big-endian pack mismatch: %X", big)
	}
}
