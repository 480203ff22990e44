// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import "errors"

var (
	errParse        = errors.New("parse error")
	errDivideByZero = errors.New("division by zero")
)

// An asmerror is used to keep track of errors encountered during
// assembly, tied to the source position that caused them.
type asmerror struct {
	line fstring // row & column of assembly code causing the error
	msg  string  // error message
}
