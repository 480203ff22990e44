// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asm implements a retargetable two-pass assembler. The
// addressing modes, opcode tables, directives and validation rules
// that make it work for a particular CPU all come from a
// profile.Profile supplied by the caller; nothing in this package is
// specific to one instruction set.
package asm

import (
	"bufio"
	"io"
	"strings"

	"github.com/kestrel-labs/rasm/diag"
	"github.com/kestrel-labs/rasm/profile"
)

type segmentKind int

const (
	segInstruction segmentKind = iota
	segData
)

// A segment is one chunk of code or data the first pass assigned an
// address to. Its expressions are resolved and encoded during the
// second pass.
type segment struct {
	kind       segmentKind
	addr       int
	line       int
	text       string

	// instruction fields
	mnemonic   string
	mode       profile.ModeTag
	modeName   string
	rawOperand string
	operand    *Expr // nil for a mode with no operand (e.g. implied)
	desc       profile.OpcodeDescriptor

	// data fields
	unit  int
	exprs []*Expr
}

type pendingEquate struct {
	name string
	expr *Expr
	line int
}

// Encoded is one contiguous run of encoded bytes at a known address,
// with enough source information attached to produce a listing line.
type Encoded struct {
	Addr  int
	Bytes []byte
	Line  int
	Text  string
}

// Program is the result of a successful assembly: every encoded
// segment plus the final symbol table, in source order.
type Program struct {
	Origin  int
	Segments []Encoded
	Symbols map[string]Symbol
}

// Assembler holds the state needed to assemble one source file
// against one CPU profile.
type Assembler struct {
	prof *profile.Profile
	sink *diag.Sink

	syms       *symbolTable
	pc         int
	haveOrigin bool
	origin     int

	segments []*segment
	equates  []pendingEquate
	curLine  string

	exprParser exprParser
}

// NewAssembler creates an assembler that reports diagnostics to sink
// and assembles against prof. The current address starts at 0, the
// default in effect until a .ORG-kind directive or SetStartAddress
// says otherwise.
func NewAssembler(prof *profile.Profile, sink *diag.Sink) *Assembler {
	return &Assembler{
		prof: prof,
		sink: sink,
		syms: newSymbolTable(),
	}
}

// SetStartAddress preloads the assembler's origin before the first
// line is read, letting a caller override (or supply, when the source
// has no .ORG-kind directive of its own) the starting address.
func (a *Assembler) SetStartAddress(addr int) {
	a.pc, a.origin, a.haveOrigin = addr, addr, true
}

// Assemble reads source from r and performs both assembler passes,
// returning the assembled program. Once the source has been read,
// pass 2 always runs, even when pass 1 recorded errors of its own (a
// duplicate label, say): every instruction and data directive still
// gets its chance to report its own diagnostics, so one run surfaces
// as many problems as possible rather than stopping at the first one
// found. Assemble returns a non-nil error when reading r fails, or
// when the diagnostics sink recorded at least one error by the time
// both passes have finished; warnings never prevent assembly from
// completing.
func (a *Assembler) Assemble(r io.Reader) (*Program, error) {
	a.sink.TraceSection("pass 1: sizing and symbol table")
	if err := a.pass1(r); err != nil {
		return nil, err
	}

	a.resolveEquates()

	a.sink.TraceSection("pass 2: evaluation, validation and encoding")
	prog := a.pass2()

	if a.sink.HadErrors() {
		return nil, errParse
	}
	return prog, nil
}

// pass1 scans the source line by line, splitting each line into its
// label/directive/mnemonic/operand fields, sizing every instruction
// and data directive, and populating the symbol table. Addresses are
// known immediately once an origin is in effect, since an
// instruction's size depends only on its recognized addressing mode,
// never on the value of its operand expression.
func (a *Assembler) pass1(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	row := 0
	for scanner.Scan() {
		row++
		raw := newFstring(row, scanner.Text()).stripTrailingComment()

		pl, err := parseLine(a.prof, raw)
		if err != nil {
			a.sink.Error(row, "malformed line")
			continue
		}
		if pl.isBlank() {
			continue
		}
		if pl.LabelDeviant {
			a.sink.Warning(row, "label %q does not conform to identifier syntax; recorded on a best-effort basis", pl.Label.str)
		}

		a.curLine = raw.full
		stop := a.processLine(pl, row)
		if stop {
			break
		}
	}
	return scanner.Err()
}

// processLine handles one non-blank parsed line and reports whether
// pass 1 should stop scanning (true only for the .END directive).
func (a *Assembler) processLine(pl parsedLine, row int) (stop bool) {
	switch {
	case !pl.Directive.isEmpty():
		d := a.prof.Directives[strings.ToUpper(pl.Directive.str)]
		switch d.Kind {
		case profile.DirOrigin:
			a.handleOrigin(pl, row)
		case profile.DirEquate:
			a.handleEquate(pl, row)
		case profile.DirData:
			a.handleData(pl, d.Unit, row)
		case profile.DirEnd:
			return true
		}
		return false

	case !pl.Mnemonic.isEmpty():
		a.handleInstruction(pl, row)
		return false

	case pl.HasLabel:
		// A bare label with nothing following it binds to the
		// current address, same as a label preceding an instruction.
		a.bindLabelHere(pl, row)
		return false

	default:
		return false
	}
}

func (a *Assembler) bindLabelHere(pl parsedLine, row int) {
	a.defineLabel(pl.Label.str, a.pc, row)
}

func (a *Assembler) defineLabel(name string, value int, row int) {
	if sym, ok := a.syms.lookup(name); ok && sym.Defined {
		a.sink.Error(row, "label %q already defined on line %d", name, sym.Line)
		return
	}
	a.syms.define(name, SymbolLabel, int64(value), row)
}

// handleOrigin processes an .ORG-kind directive. Re-origining is
// permitted: a profile may declare more than one contiguous run of
// code or data at disjoint addresses, and the binary emitter fills
// the gaps between them.
func (a *Assembler) handleOrigin(pl parsedLine, row int) {
	e, remain, err := a.exprParser.parse(pl.Operand)
	if err != nil {
		a.addExprErrors(row)
		return
	}
	if !remain.isEmpty() {
		a.sink.Error(row, "unexpected text after origin expression")
		return
	}
	v, ok, err := evaluate(e, a.syms)
	if err != nil {
		a.sink.Error(row, "%v", err)
		return
	}
	if !ok {
		a.sink.Error(row, "origin expression is not a compile-time constant")
		return
	}
	a.pc = int(v)
	if !a.haveOrigin {
		a.origin, a.haveOrigin = int(v), true
	}
	if pl.HasLabel {
		a.defineLabel(pl.Label.str, a.pc, row)
	}
}

// handleEquate processes an EQU-kind directive. The label is
// required; the value is resolved immediately if possible, or
// deferred until other equates and labels are known.
func (a *Assembler) handleEquate(pl parsedLine, row int) {
	if !pl.HasLabel {
		a.sink.Error(row, "equate directive requires a label")
		return
	}
	e, remain, err := a.exprParser.parse(pl.Operand)
	if err != nil {
		a.addExprErrors(row)
		return
	}
	if !remain.isEmpty() {
		a.sink.Error(row, "unexpected text after equate expression")
		return
	}

	if sym, ok := a.syms.lookup(pl.Label.str); ok && sym.Defined {
		a.sink.Error(row, "label %q already defined on line %d", pl.Label.str, sym.Line)
		return
	}

	if v, ok, err := evaluate(e, a.syms); err != nil {
		a.sink.Error(row, "%v", err)
	} else if ok {
		a.syms.define(pl.Label.str, SymbolEquate, v, row)
	} else {
		a.syms.declare(pl.Label.str)
		a.equates = append(a.equates, pendingEquate{name: pl.Label.str, expr: e, line: row})
	}
}

// handleData processes a .BYTE/.WORD-kind directive: a comma
// separated list of expressions, each unit bytes wide once encoded.
func (a *Assembler) handleData(pl parsedLine, unit int, row int) {
	if pl.HasLabel {
		a.defineLabel(pl.Label.str, a.pc, row)
	}

	seg := &segment{kind: segData, addr: a.pc, line: row, unit: unit, text: a.curLine}

	remain := pl.Operand
	for !remain.isEmpty() {
		var item fstring
		item, remain = remain.consumeUntilChar(',')
		if !remain.isEmpty() {
			remain = remain.consume(1).consumeWhitespace()
		}

		e, tail, err := a.exprParser.parse(item)
		if err != nil {
			a.addExprErrors(row)
			return
		}
		if !tail.isEmpty() {
			a.sink.Error(row, "unexpected text in data value %q", item.str)
			return
		}
		seg.exprs = append(seg.exprs, e)
	}

	a.sink.Trace("%04X  .DATA  unit=%d  count=%d", seg.addr, unit, len(seg.exprs))

	a.pc += unit * len(seg.exprs)
	a.segments = append(a.segments, seg)
}

// handleInstruction processes a mnemonic line: it recognizes the
// operand's addressing mode, looks up the matching opcode descriptor,
// and reserves the instruction's bytes in the address space.
func (a *Assembler) handleInstruction(pl parsedLine, row int) {
	if pl.HasLabel {
		a.defineLabel(pl.Label.str, a.pc, row)
	}

	mnemonic := strings.ToUpper(pl.Mnemonic.str)
	modes := a.prof.Instructions(mnemonic)
	if modes == nil {
		a.sink.Error(row, "invalid mnemonic %q", pl.Mnemonic.str)
		return
	}

	operandText := strings.TrimSpace(pl.Operand.str)
	mode, exprText, ok := recognizeMode(a.prof, operandText)
	if !ok {
		a.sink.Error(row, "unrecognized addressing mode for operand %q", operandText)
		return
	}

	desc, ok := a.prof.Opcode(mnemonic, mode)
	if !ok {
		a.sink.Error(row, "addressing mode %q not valid for %q", a.prof.ModeName(mode), mnemonic)
		return
	}

	seg := &segment{
		kind:       segInstruction,
		addr:       a.pc,
		line:       row,
		text:       a.curLine,
		mnemonic:   mnemonic,
		mode:       mode,
		modeName:   a.prof.ModeName(mode),
		rawOperand: operandText,
		desc:       desc,
	}

	if desc.OperandSize > 0 {
		e, remain, err := a.exprParser.parse(newFstring(row, exprText))
		if err != nil {
			a.addExprErrors(row)
			return
		}
		if !remain.isEmpty() {
			a.sink.Error(row, "unexpected text after operand expression")
			return
		}
		seg.operand = e
	}

	a.sink.Trace("%04X  %-4s  %-4s  size=%d  operand=%q", seg.addr, seg.mnemonic, seg.modeName, desc.Size(), operandText)

	a.pc += desc.Size()
	a.segments = append(a.segments, seg)
}

// resolveEquates repeatedly tries to evaluate deferred equate
// expressions until no further progress is made, mirroring the
// fixed-point evaluation the profile-free teacher assembler used for
// forward-referenced macros.
func (a *Assembler) resolveEquates() {
	for {
		var remaining []pendingEquate
		progress := false
		for _, pe := range a.equates {
			v, ok, err := evaluate(pe.expr, a.syms)
			switch {
			case err != nil:
				a.sink.Error(pe.line, "%v", err)
				progress = true
			case ok:
				a.syms.define(pe.name, SymbolEquate, v, pe.line)
				progress = true
			default:
				remaining = append(remaining, pe)
			}
		}
		a.equates = remaining
		if !progress || len(a.equates) == 0 {
			break
		}
	}
	for _, pe := range a.equates {
		name := undefinedSymbol(pe.expr, a.syms)
		a.sink.Error(pe.line, "undefined symbol %q", name)
	}
}

// pass2 evaluates every instruction and data expression against the
// completed symbol table, runs the profile's validation rules, and
// encodes the final bytes.
func (a *Assembler) pass2() *Program {
	prog := &Program{Origin: a.origin, Symbols: make(map[string]Symbol)}

	for _, seg := range a.segments {
		switch seg.kind {
		case segInstruction:
			a.encodeInstruction(seg, prog)
		case segData:
			a.encodeData(seg, prog)
		}
	}

	for name, sym := range a.syms.symbols {
		if sym.Defined {
			prog.Symbols[name] = *sym
		}
	}
	return prog
}

func (a *Assembler) encodeInstruction(seg *segment, prog *Program) {
	var value int64
	var hasValue bool

	if seg.operand != nil {
		v, ok, err := evaluate(seg.operand, a.syms)
		if err != nil {
			a.sink.Error(seg.line, "%v", err)
			return
		}
		if !ok {
			a.sink.Error(seg.line, "undefined symbol %q", undefinedSymbol(seg.operand, a.syms))
			return
		}
		value, hasValue = v, true
	}

	operandValue := value
	outOfRange := false
	isBranch := a.prof.IsBranch(seg.mnemonic)
	switch {
	case hasValue && isBranch:
		nextPC := seg.addr + seg.desc.Size()
		disp := value - int64(nextPC)
		if disp < -128 || disp > 127 {
			a.sink.Error(seg.line, "branch out of range")
			return
		}
		operandValue = disp

	case hasValue:
		if !operandInRange(value, seg.desc.OperandSize) {
			a.sink.Error(seg.line, "operand %s out of range for a %d-byte operand", formatOperandValue(value), seg.desc.OperandSize)
			outOfRange = true
		}
	}

	findings := profile.Evaluate(a.prof.ValidationRules, profile.Input{
		Mnemonic:   seg.mnemonic,
		Mode:       seg.mode,
		ModeName:   seg.modeName,
		RawOperand: seg.rawOperand,
		Value:      value,
		HasValue:   hasValue,
	})
	a.reportFindings(seg.line, findings)
	if outOfRange {
		return
	}

	code := append([]byte{}, seg.desc.Bytes...)
	if seg.desc.OperandSize > 0 {
		code = append(code, packBytes(a.prof.Info.Endianness, seg.desc.OperandSize, operandValue)...)
	}

	prog.Segments = append(prog.Segments, Encoded{Addr: seg.addr, Bytes: code, Line: seg.line, Text: seg.text})
}

func (a *Assembler) encodeData(seg *segment, prog *Program) {
	var code []byte
	for _, e := range seg.exprs {
		v, ok, err := evaluate(e, a.syms)
		if err != nil {
			a.sink.Error(seg.line, "%v", err)
			continue
		}
		if !ok {
			a.sink.Error(seg.line, "undefined symbol %q", undefinedSymbol(e, a.syms))
			continue
		}
		if !operandInRange(v, seg.unit) {
			a.sink.Error(seg.line, "value %s out of range for a %d-byte data unit", formatOperandValue(v), seg.unit)
			continue
		}
		code = append(code, packBytes(a.prof.Info.Endianness, seg.unit, v)...)
	}
	prog.Segments = append(prog.Segments, Encoded{Addr: seg.addr, Bytes: code, Line: seg.line, Text: seg.text})
}

func (a *Assembler) reportFindings(line int, findings []profile.Finding) {
	for _, f := range findings {
		if f.IsError {
			a.sink.Error(line, "%s", f.Message)
		} else {
			a.sink.Warning(line, "%s", f.Message)
		}
	}
}

func (a *Assembler) addExprErrors(row int) {
	for _, e := range a.exprParser.errors {
		a.sink.Error(row, "%s", e.msg)
	}
}
