// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"strings"

	"github.com/kestrel-labs/rasm/profile"
)

// A parsedLine is the result of splitting one line of source text into
// its label, directive-or-mnemonic and operand fields. Comments have
// already been stripped. A blank (or comment-only) line parses to the
// zero value.
type parsedLine struct {
	Label        fstring
	HasLabel     bool
	LabelDeviant bool    // label didn't conform to identifier syntax; recorded best-effort
	Directive    fstring // set when the line names a profile directive
	Mnemonic     fstring // set when the line names an opcode mnemonic
	Operand      fstring // whatever follows the directive/mnemonic, trimmed
}

func (pl parsedLine) isBlank() bool {
	return !pl.HasLabel && pl.Directive.isEmpty() && pl.Mnemonic.isEmpty()
}

// parseLine splits one source line (with its trailing comment already
// removed) into label, directive-or-mnemonic and operand fields.
func parseLine(prof *profile.Profile, line fstring) (parsedLine, error) {
	var pl parsedLine

	if line.isEmpty() {
		return pl, nil
	}

	if line.startsWith(whitespace) {
		line = line.consumeWhitespace()
	} else {
		label, remain, deviant, err := parseLabelToken(line)
		if err != nil {
			return pl, err
		}
		pl.Label, pl.HasLabel, pl.LabelDeviant = label, true, deviant
		line = remain
	}

	if line.isEmpty() {
		return pl, nil
	}

	word, remain := line.consumeWhile(wordChar)
	if word.isEmpty() {
		return pl, errParse
	}

	if _, isDirective := prof.Directives[strings.ToUpper(word.str)]; isDirective {
		pl.Directive = word
	} else {
		pl.Mnemonic = word
	}

	pl.Operand = remain.consumeWhitespace()
	return pl, nil
}

// parseLabelToken parses a label at the start of a line: an
// identifier, optionally followed by a colon. A leading token that
// doesn't conform to identifier syntax (it doesn't start with a letter
// or underscore, or contains other characters before the colon or
// whitespace) is still recovered on a best-effort basis
// (deviant == true) rather than rejected outright, so the caller can
// record it with a warning instead of discarding the whole line.
func parseLabelToken(line fstring) (label fstring, remain fstring, deviant bool, err error) {
	if !line.startsWith(labelStartChar) {
		label, remain = line.consumeWhile(deviantLabelChar)
		if label.isEmpty() {
			return fstring{}, line, false, errParse
		}
		deviant = true
	} else {
		label, remain = line.consumeWhile(labelChar)
		if !remain.isEmpty() && !remain.startsWithChar(':') && !remain.startsWith(whitespace) {
			label, remain = line.consumeWhile(deviantLabelChar)
			deviant = true
		}
	}

	if remain.startsWithChar(':') {
		remain = remain.consume(1)
	}

	if !remain.isEmpty() && !remain.startsWith(whitespace) {
		return fstring{}, remain, false, errParse
	}

	remain = remain.consumeWhitespace()
	return label, remain, deviant, nil
}
