package profile

import "strings"

// RuleType selects a validation rule's firing condition and severity.
type RuleType int

// The validation rule types the engine understands.
const (
	RuleErrorIfModeIs RuleType = iota
	RuleErrorIfModeIsNot
	RuleWarningIfModeIs
	RuleWarningIfModeIsNot
	RuleErrorIfOperandOutOfRange
	RuleWarningIfOperandOutOfRange
	RuleErrorIfRegisterUsed
	RuleWarningIfRegisterUsed
)

// Rule is one declarative validation rule, applied to every
// instruction during Pass 2.
type Rule struct {
	Type       RuleType
	Mnemonics  map[string]bool
	Modes      map[ModeTag]bool
	Registers  []string
	Min, Max   int64
	Exceptions map[string]bool
	Message    string
}

func (r Rule) isError() bool {
	switch r.Type {
	case RuleErrorIfModeIs, RuleErrorIfModeIsNot, RuleErrorIfOperandOutOfRange, RuleErrorIfRegisterUsed:
		return true
	default:
		return false
	}
}

// Finding is one diagnostic produced by evaluating a rule against an
// instruction.
type Finding struct {
	IsError bool
	Message string
}

// Input bundles the facts a rule needs to decide whether it fires.
type Input struct {
	Mnemonic   string
	Mode       ModeTag
	ModeName   string
	RawOperand string
	Value      int64
	HasValue   bool
}

// Evaluate runs every validation rule against one instruction and
// returns the findings (in rule-declaration order) that fired.
func Evaluate(rules []Rule, in Input) []Finding {
	var findings []Finding
	for _, r := range rules {
		if msg, fired := r.fires(in); fired {
			findings = append(findings, Finding{IsError: r.isError(), Message: msg})
		}
	}
	return findings
}

func (r Rule) fires(in Input) (string, bool) {
	switch r.Type {
	case RuleErrorIfModeIs, RuleWarningIfModeIs:
		if r.Mnemonics[in.Mnemonic] && r.Modes[in.Mode] {
			return r.render(in), true
		}
	case RuleErrorIfModeIsNot, RuleWarningIfModeIsNot:
		if r.Mnemonics[in.Mnemonic] && !r.Modes[in.Mode] {
			return r.render(in), true
		}
	case RuleErrorIfOperandOutOfRange, RuleWarningIfOperandOutOfRange:
		if len(r.Mnemonics) > 0 && !r.Mnemonics[in.Mnemonic] {
			return "", false
		}
		if len(r.Modes) > 0 && !r.Modes[in.Mode] {
			return "", false
		}
		if r.Exceptions[in.Mnemonic] {
			return "", false
		}
		if in.HasValue && (in.Value < r.Min || in.Value > r.Max) {
			return r.render(in), true
		}
	case RuleErrorIfRegisterUsed, RuleWarningIfRegisterUsed:
		if !r.Mnemonics[in.Mnemonic] {
			return "", false
		}
		for _, reg := range r.Registers {
			if containsRegister(in.RawOperand, reg) {
				return r.render(in), true
			}
		}
	}
	return "", false
}

func containsRegister(operand, reg string) bool {
	return strings.Contains(strings.ToUpper(operand), strings.ToUpper(reg))
}

func (r Rule) render(in Input) string {
	msg := r.Message
	msg = strings.ReplaceAll(msg, "{mnemonic}", in.Mnemonic)
	msg = strings.ReplaceAll(msg, "{mode}", in.ModeName)
	if in.HasValue {
		msg = strings.ReplaceAll(msg, "{value}", formatValue(in.Value))
	}
	return msg
}

func formatValue(v int64) string {
	if v < 0 {
		return "-$" + hexString(-v)
	}
	return "$" + hexString(v)
}

func hexString(v int64) string {
	const digits = "0123456789ABCDEF"
	if v == 0 {
		return "0"
	}
	var b []byte
	for v > 0 {
		b = append([]byte{digits[v%16]}, b...)
		v /= 16
	}
	return string(b)
}
