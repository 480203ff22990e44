// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

// evaluate walks an expression tree and attempts to resolve it to a
// value using the current contents of syms. ok is false if the
// expression (or one of its subexpressions) references a symbol that
// is not yet defined; this is not itself an error, since forward
// references are resolved on a later pass. err is non-nil only for
// genuine evaluation failures, such as division by zero.
func evaluate(e *Expr, syms *symbolTable) (value int64, ok bool, err error) {
	switch e.Kind {
	case ExprNumber:
		return e.Value, true, nil

	case ExprSymbol:
		sym, found := syms.lookup(e.Name)
		if !found || !sym.Defined {
			return 0, false, nil
		}
		return sym.Value, true, nil

	case ExprUnaryOp:
		v, ok, err := evaluate(e.Left, syms)
		if err != nil || !ok {
			return 0, ok, err
		}
		result, err := ops[e.op].eval(v, 0)
		return result, true, err

	case ExprBinOp:
		lv, lok, err := evaluate(e.Left, syms)
		if err != nil {
			return 0, false, err
		}
		rv, rok, err := evaluate(e.Right, syms)
		if err != nil {
			return 0, false, err
		}
		if !lok || !rok {
			return 0, false, nil
		}
		result, err := ops[e.op].eval(lv, rv)
		return result, true, err

	default:
		return 0, false, errParse
	}
}

// undefinedSymbol returns the name of an undefined symbol somewhere
// in e, or "" if every symbol in the tree is defined. Used to build a
// precise diagnostic once an expression fails to resolve after both
// assembler passes.
func undefinedSymbol(e *Expr, syms *symbolTable) string {
	switch e.Kind {
	case ExprSymbol:
		if sym, found := syms.lookup(e.Name); !found || !sym.Defined {
			return e.Name
		}
		return ""
	case ExprUnaryOp:
		return undefinedSymbol(e.Left, syms)
	case ExprBinOp:
		if name := undefinedSymbol(e.Left, syms); name != "" {
			return name
		}
		return undefinedSymbol(e.Right, syms)
	default:
		return ""
	}
}
