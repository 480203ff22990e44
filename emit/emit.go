// Package emit turns an assembled asm.Program into the two artifacts
// an assembler's external collaborators actually consume: a raw
// binary image and a human-readable listing.
package emit

import (
	"fmt"
	"io"
	"sort"

	"github.com/kestrel-labs/rasm/asm"
)

// WriteBinary writes prog's encoded segments as a single contiguous
// absolute binary image: no header, no relocation table, no symbol
// table. The image starts at the lowest encoded address and ends at
// the highest; gaps between non-contiguous segments (created by more
// than one .ORG directive) are padded with fill.
func WriteBinary(w io.Writer, prog *asm.Program, fill byte) (int, error) {
	if len(prog.Segments) == 0 {
		return 0, nil
	}

	segs := sortedSegments(prog)

	lo := segs[0].Addr
	hi := segs[0].Addr + len(segs[0].Bytes)
	for _, s := range segs[1:] {
		if s.Addr < lo {
			lo = s.Addr
		}
		if end := s.Addr + len(s.Bytes); end > hi {
			hi = end
		}
	}

	image := make([]byte, hi-lo)
	for i := range image {
		image[i] = fill
	}
	for _, s := range segs {
		copy(image[s.Addr-lo:], s.Bytes)
	}

	return w.Write(image)
}

// WriteListing writes one line per encoded segment in the form
// "AAAA  BB BB BB  <source line>", in ascending address order.
func WriteListing(w io.Writer, prog *asm.Program) error {
	for _, s := range sortedSegments(prog) {
		_, err := fmt.Fprintf(w, "%04X  %-24s  %s\n", s.Addr, byteColumn(s.Bytes), s.Text)
		if err != nil {
			return err
		}
	}
	return nil
}

func sortedSegments(prog *asm.Program) []asm.Encoded {
	segs := make([]asm.Encoded, len(prog.Segments))
	copy(segs, prog.Segments)
	sort.Slice(segs, func(i, j int) bool { return segs[i].Addr < segs[j].Addr })
	return segs
}

const hexDigits = "0123456789ABCDEF"

func byteColumn(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out := make([]byte, 0, len(b)*3-1)
	for i, c := range b {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, hexDigits[c>>4], hexDigits[c&0x0f])
	}
	return string(out)
}
