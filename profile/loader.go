package profile

import (
	"fmt"
	"regexp"

	"github.com/BurntSushi/toml"
)

// rawDocument mirrors the on-disk TOML shape of a CPU profile. It is
// decoded verbatim by BurntSushi/toml and then validated and compiled
// into a Profile by Load.
type rawDocument struct {
	CPUInfo struct {
		Name             string `toml:"name"`
		DataWidthBits    int    `toml:"data_width_bits"`
		AddressWidthBits int    `toml:"address_width_bits"`
		Endianness       string `toml:"endianness"`
		FillByte         int64  `toml:"fill_byte"`
	} `toml:"cpu_info"`

	AddressingModes struct {
		Implied string   `toml:"implied"`
		Modes   []string `toml:"modes"`
	} `toml:"addressing_modes"`

	AddressingModePatterns []rawPattern `toml:"addressing_mode_patterns"`

	Opcodes map[string]map[string]rawOpcode `toml:"opcodes"`

	BranchMnemonics []string `toml:"branch_mnemonics"`

	Directives map[string]rawDirective `toml:"directives"`

	ValidationRules []rawRule       `toml:"validation_rules"`
	LegacyRules     []rawLegacyRule `toml:"legacy_rules"`
}

type rawPattern struct {
	Pattern string `toml:"pattern"`
	Mode    string `toml:"mode"`
	Group   int    `toml:"group"`
}

type rawOpcode struct {
	Bytes         []int64        `toml:"bytes"`
	OperandSize   int            `toml:"operand_size"`
	FlagsAffected string         `toml:"flags_affected"`
	Metadata      map[string]any `toml:"metadata"`
}

type rawDirective struct {
	Kind string `toml:"kind"`
	Unit int    `toml:"unit"`
}

type rawRule struct {
	Type       string   `toml:"type"`
	Mnemonics  []string `toml:"mnemonics"`
	Modes      []string `toml:"modes"`
	Registers  []string `toml:"registers"`
	Min        int64    `toml:"min"`
	Max        int64    `toml:"max"`
	Exceptions []string `toml:"exceptions"`
	Message    string   `toml:"message"`
}

// rawLegacyRule is the "legacy" validation-rule shape the spec requires
// loaders to keep accepting: a dictionary mapping a mnemonic set to an
// allowed or disallowed list of addressing modes.
type rawLegacyRule struct {
	Mnemonics       []string `toml:"mnemonics"`
	AllowedModes    []string `toml:"allowed_modes"`
	DisallowedModes []string `toml:"disallowed_modes"`
	Severity        string   `toml:"severity"`
	Message         string   `toml:"message"`
}

// Load reads, validates and compiles a CPU profile document from path.
// Validation failures are fatal: the caller must not begin assembly
// with a profile that failed to load.
func Load(path string) (*Profile, error) {
	var raw rawDocument
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("loading profile %s: %w", path, err)
	}
	return compile(&raw)
}

func compile(raw *rawDocument) (*Profile, error) {
	p := &Profile{
		ModeNames:      make(map[string]ModeTag, len(raw.AddressingModes.Modes)),
		ModeNamesByTag: make(map[ModeTag]string, len(raw.AddressingModes.Modes)),
		Opcodes:        make(map[string]map[ModeTag]OpcodeDescriptor),
		BranchMnemonics: make(map[string]bool, len(raw.BranchMnemonics)),
		Directives:     make(map[string]Directive, len(raw.Directives)),
	}

	switch raw.CPUInfo.Endianness {
	case "little":
		p.Info.Endianness = Little
	case "big":
		p.Info.Endianness = Big
	default:
		return nil, fmt.Errorf("cpu_info.endianness must be \"little\" or \"big\", got %q", raw.CPUInfo.Endianness)
	}
	p.Info.Name = raw.CPUInfo.Name
	p.Info.DataWidthBits = raw.CPUInfo.DataWidthBits
	p.Info.AddressWidthBits = raw.CPUInfo.AddressWidthBits
	p.Info.FillByte = byte(raw.CPUInfo.FillByte)

	if len(raw.AddressingModes.Modes) == 0 {
		return nil, fmt.Errorf("addressing_modes.modes must declare at least one mode")
	}
	for i, name := range raw.AddressingModes.Modes {
		tag := ModeTag(i)
		p.ModeNames[name] = tag
		p.ModeNamesByTag[tag] = name
	}
	implied, ok := p.ModeNames[raw.AddressingModes.Implied]
	if !ok {
		return nil, fmt.Errorf("addressing_modes.implied %q is not a declared mode", raw.AddressingModes.Implied)
	}
	p.ImpliedMode = implied

	for _, rp := range raw.AddressingModePatterns {
		mode, ok := p.ModeNames[rp.Mode]
		if !ok {
			return nil, fmt.Errorf("addressing_mode_patterns: mode %q is not declared", rp.Mode)
		}
		re, err := regexp.Compile(rp.Pattern)
		if err != nil {
			return nil, fmt.Errorf("addressing_mode_patterns: invalid regex %q: %w", rp.Pattern, err)
		}
		p.Patterns = append(p.Patterns, AddressingModePattern{
			Mode:  mode,
			Group: rp.Group,
			re:    re,
		})
	}

	for mnemonic, modes := range raw.Opcodes {
		name := upper(mnemonic)
		descs := make(map[ModeTag]OpcodeDescriptor, len(modes))
		for modeName, op := range modes {
			mode, ok := p.ModeNames[modeName]
			if !ok {
				return nil, fmt.Errorf("opcodes.%s.%s: mode %q is not declared", mnemonic, modeName, modeName)
			}
			if len(op.Bytes) == 0 {
				return nil, fmt.Errorf("opcodes.%s.%s: opcode_bytes must not be empty", mnemonic, modeName)
			}
			if op.OperandSize < 0 || op.OperandSize > 2 {
				return nil, fmt.Errorf("opcodes.%s.%s: operand_size must be 0, 1 or 2", mnemonic, modeName)
			}
			bytes := make([]byte, len(op.Bytes))
			for i, b := range op.Bytes {
				bytes[i] = byte(b)
			}
			descs[mode] = OpcodeDescriptor{
				Bytes:         bytes,
				OperandSize:   op.OperandSize,
				FlagsAffected: op.FlagsAffected,
				Metadata:      op.Metadata,
			}
		}
		p.Opcodes[name] = descs
	}

	for _, m := range raw.BranchMnemonics {
		name := upper(m)
		modes, ok := p.Opcodes[name]
		if !ok {
			return nil, fmt.Errorf("branch_mnemonics: %q has no opcode entries", name)
		}
		found := false
		for _, desc := range modes {
			if desc.OperandSize == 1 {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("branch_mnemonics: %q has no 1-byte-operand addressing mode", name)
		}
		p.BranchMnemonics[name] = true
	}

	for name, d := range raw.Directives {
		kind, unit, err := parseDirectiveKind(d)
		if err != nil {
			return nil, fmt.Errorf("directives.%s: %w", name, err)
		}
		p.Directives[upper(name)] = Directive{Kind: kind, Unit: unit}
	}

	for _, rr := range raw.ValidationRules {
		rule, err := compileRule(rr, p.ModeNames)
		if err != nil {
			return nil, fmt.Errorf("validation_rules: %w", err)
		}
		p.ValidationRules = append(p.ValidationRules, rule)
	}
	for _, lr := range raw.LegacyRules {
		rules, err := compileLegacyRule(lr, p.ModeNames)
		if err != nil {
			return nil, fmt.Errorf("legacy_rules: %w", err)
		}
		p.ValidationRules = append(p.ValidationRules, rules...)
	}

	return p, nil
}

func parseDirectiveKind(d rawDirective) (DirectiveKind, int, error) {
	switch d.Kind {
	case "org":
		return DirOrigin, 0, nil
	case "equ":
		return DirEquate, 0, nil
	case "data":
		if d.Unit != 1 && d.Unit != 2 {
			return 0, 0, fmt.Errorf("data directive must declare unit of 1 or 2")
		}
		return DirData, d.Unit, nil
	case "end":
		return DirEnd, 0, nil
	default:
		return 0, 0, fmt.Errorf("unknown directive kind %q", d.Kind)
	}
}

func compileRule(rr rawRule, modeNames map[string]ModeTag) (Rule, error) {
	rt, err := parseRuleType(rr.Type)
	if err != nil {
		return Rule{}, err
	}
	modes, err := modeSet(rr.Modes, modeNames)
	if err != nil {
		return Rule{}, err
	}
	return Rule{
		Type:       rt,
		Mnemonics:  stringSet(rr.Mnemonics),
		Modes:      modes,
		Registers:  rr.Registers,
		Min:        rr.Min,
		Max:        rr.Max,
		Exceptions: stringSet(rr.Exceptions),
		Message:    rr.Message,
	}, nil
}

func parseRuleType(s string) (RuleType, error) {
	switch s {
	case "error_if_mode_is":
		return RuleErrorIfModeIs, nil
	case "error_if_mode_is_not":
		return RuleErrorIfModeIsNot, nil
	case "warning_if_mode_is":
		return RuleWarningIfModeIs, nil
	case "warning_if_mode_is_not":
		return RuleWarningIfModeIsNot, nil
	case "error_if_operand_out_of_range":
		return RuleErrorIfOperandOutOfRange, nil
	case "warning_if_operand_out_of_range":
		return RuleWarningIfOperandOutOfRange, nil
	case "error_if_register_used":
		return RuleErrorIfRegisterUsed, nil
	case "warning_if_register_used":
		return RuleWarningIfRegisterUsed, nil
	default:
		return 0, fmt.Errorf("unknown rule type %q", s)
	}
}

// compileLegacyRule rewrites the legacy "mnemonic set -> allowed/disallowed
// mode list" shape into one or two generic rules.
func compileLegacyRule(lr rawLegacyRule, modeNames map[string]ModeTag) ([]Rule, error) {
	mnemonics := stringSet(lr.Mnemonics)
	isWarning := lr.Severity == "warning"

	var rules []Rule
	if len(lr.AllowedModes) > 0 {
		modes, err := modeSet(lr.AllowedModes, modeNames)
		if err != nil {
			return nil, err
		}
		rt := RuleErrorIfModeIsNot
		if isWarning {
			rt = RuleWarningIfModeIsNot
		}
		rules = append(rules, Rule{Type: rt, Mnemonics: mnemonics, Modes: modes, Message: lr.Message})
	}
	if len(lr.DisallowedModes) > 0 {
		modes, err := modeSet(lr.DisallowedModes, modeNames)
		if err != nil {
			return nil, err
		}
		rt := RuleErrorIfModeIs
		if isWarning {
			rt = RuleWarningIfModeIs
		}
		rules = append(rules, Rule{Type: rt, Mnemonics: mnemonics, Modes: modes, Message: lr.Message})
	}
	return rules, nil
}

func modeSet(names []string, modeNames map[string]ModeTag) (map[ModeTag]bool, error) {
	set := make(map[ModeTag]bool, len(names))
	for _, n := range names {
		mode, ok := modeNames[n]
		if !ok {
			return nil, fmt.Errorf("mode %q is not declared", n)
		}
		set[mode] = true
	}
	return set, nil
}

func stringSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[upper(n)] = true
	}
	return set
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
