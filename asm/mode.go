// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import "github.com/kestrel-labs/rasm/profile"

// recognizeMode classifies an operand's addressing mode by trying
// each of the profile's regex patterns in declared order and taking
// the first match. A matched pattern's capture group (if any) selects
// the substring to hand to the expression parser; a group of 0 (or
// one the pattern does not have) hands over the whole operand text
// unchanged. No syntactic markers such as "#", parentheses or ",X"
// are removed from it.
//
// An empty operand always recognizes as the profile's implied mode.
func recognizeMode(prof *profile.Profile, operand string) (mode profile.ModeTag, exprText string, ok bool) {
	if len(operand) == 0 {
		return prof.ImpliedMode, "", true
	}

	for _, pat := range prof.Patterns {
		re := pat.Regexp()
		m := re.FindStringSubmatch(operand)
		if m == nil {
			continue
		}
		if pat.Group > 0 && pat.Group < len(m) {
			return pat.Mode, m[pat.Group], true
		}
		return pat.Mode, operand, true
	}

	return profile.NoMode, "", false
}
