package profile_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-labs/rasm/profile"
)

func load(t *testing.T, name string) *profile.Profile {
	t.Helper()
	p, err := profile.Load("../profiles/" + name + ".toml")
	require.NoError(t, err, "loading %s profile", name)
	return p
}

func TestLoad6502Profile(t *testing.T) {
	p := load(t, "6502")

	assert.Equal(t, "MOS 6502", p.Info.Name)
	assert.Equal(t, profile.Little, p.Info.Endianness)
	assert.Equal(t, 16, p.Info.AddressWidthBits)
	assert.Equal(t, byte(0x00), p.Info.FillByte)

	assert.Len(t, p.Patterns, 5, "5 addressing mode patterns declared")

	lda := p.Instructions("LDA")
	require.NotNil(t, lda, "LDA must have opcode entries")
	assert.Len(t, lda, 5, "LDA supports IMM, ZPG, ZPX, ABS, ABX")

	desc, ok := p.Opcode("LDA", p.ModeNames["IMM"])
	require.True(t, ok)
	assert.Equal(t, []byte{0xA9}, desc.Bytes)
	assert.Equal(t, 1, desc.OperandSize)
	assert.Equal(t, 2, desc.Size())

	assert.True(t, p.IsBranch("BRA"))
	assert.True(t, p.IsBranch("BEQ"))
	assert.False(t, p.IsBranch("LDA"))

	org, ok := p.Directives[".ORG"]
	require.True(t, ok)
	assert.Equal(t, profile.DirOrigin, org.Kind)

	data, ok := p.Directives[".WORD"]
	require.True(t, ok)
	assert.Equal(t, profile.DirData, data.Kind)
	assert.Equal(t, 2, data.Unit)
}

func TestLoad6800ProfileIsBigEndian(t *testing.T) {
	p := load(t, "6800")

	assert.Equal(t, profile.Big, p.Info.Endianness)
	assert.Equal(t, byte(0xFF), p.Info.FillByte)
	assert.True(t, p.IsBranch("BRA"))
}

func TestAddressingModePatternsAreOrderedAndCompiled(t *testing.T) {
	p := load(t, "6502")

	for i, pat := range p.Patterns {
		re := pat.Regexp()
		require.NotNil(t, re, "pattern %d must compile", i)
	}

	// Immediate is declared first; its pattern must require the '#'
	// prefix so it never shadows the catch-all absolute pattern.
	imm := p.Patterns[0]
	assert.True(t, imm.Regexp().MatchString("#$20"))
	assert.False(t, imm.Regexp().MatchString("$20"))
}

func TestLegacyRuleNormalizesToGenericRules(t *testing.T) {
	p := load(t, "6800")

	// 6800.toml declares one generic rule plus one legacy rule (which
	// expands to a single allowed-modes rule for LDA); both must end
	// up in ValidationRules.
	assert.Len(t, p.ValidationRules, 2)

	found := false
	for _, r := range p.ValidationRules {
		if r.Mnemonics["LDA"] {
			found = true
			assert.Equal(t, profile.RuleErrorIfModeIsNot, r.Type)
			assert.True(t, r.Modes[p.ModeNames["IMM"]])
			assert.True(t, r.Modes[p.ModeNames["DIR"]])
			assert.True(t, r.Modes[p.ModeNames["EXT"]])
		}
	}
	assert.True(t, found, "legacy rule for LDA should have been normalized in")
}

func TestLoadRejectsUnknownEndianness(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.toml"
	writeFile(t, path, `
[cpu_info]
name = "Bad"
data_width_bits = 8
address_width_bits = 16
endianness = "middle"
fill_byte = 0

[addressing_modes]
implied = "IMP"
modes = ["IMP"]
`)

	_, err := profile.Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUndeclaredImpliedMode(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.toml"
	writeFile(t, path, `
[cpu_info]
name = "Bad"
data_width_bits = 8
address_width_bits = 16
endianness = "little"
fill_byte = 0

[addressing_modes]
implied = "NOPE"
modes = ["IMP"]
`)

	_, err := profile.Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBranchMnemonicWithoutOneByteOperand(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.toml"
	writeFile(t, path, `
branch_mnemonics = ["JMP"]

[cpu_info]
name = "Bad"
data_width_bits = 8
address_width_bits = 16
endianness = "little"
fill_byte = 0

[addressing_modes]
implied = "IMP"
modes = ["IMP", "ABS"]

[opcodes.JMP.ABS]
bytes = [0x4C]
operand_size = 2
`)

	_, err := profile.Load(path)
	assert.Error(t, err)
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}
