// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"fmt"

	"github.com/kestrel-labs/rasm/profile"
)

var hex = "0123456789ABCDEF"

// packBytes encodes value into size bytes (1 or 2), respecting the
// requested endianness. Negative values are wrapped into their
// two's-complement representation for the requested width, matching
// how the profile's opcode tables express signed operands (e.g.
// branch displacements).
func packBytes(end profile.Endianness, size int, value int64) []byte {
	switch size {
	case 1:
		return []byte{byte(value)}
	case 2:
		lo, hi := byte(value), byte(value>>8)
		if end == profile.Big {
			return []byte{hi, lo}
		}
		return []byte{lo, hi}
	default:
		return nil
	}
}

// operandInRange reports whether value fits in an unsigned operand of
// sizeBytes bytes (0 <= value < 2^(8*sizeBytes)). A sizeBytes of 0
// accepts only 0, since there is no byte left to hold anything else.
func operandInRange(value int64, sizeBytes int) bool {
	limit := int64(1) << uint(8*sizeBytes)
	return value >= 0 && value < limit
}

// formatOperandValue renders a value for an out-of-range diagnostic.
func formatOperandValue(value int64) string {
	return fmt.Sprintf("%d ($%X)", value, value)
}

// byteString renders a byte slice as a space-separated hex string.
func byteString(b []byte) string {
	if len(b) < 1 {
		return ""
	}

	s := make([]byte, len(b)*3-1)
	i, j := 0, 0
	for n := len(b) - 1; i < n; i, j = i+1, j+3 {
		s[j+0] = hex[(b[i] >> 4)]
		s[j+1] = hex[(b[i] & 0x0f)]
		s[j+2] = ' '
	}
	s[j+0] = hex[(b[i] >> 4)]
	s[j+1] = hex[(b[i] & 0x0f)]
	return string(s)
}
