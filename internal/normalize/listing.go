package normalize

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shingmt/prp-disasm/internal/engine"
)

// generatedName matches addresses and engine-generated identifiers
// (0x1234, fcn.00401000, var_8h, arg_10h) that carry no semantic meaning
// across builds of the same program.
var generatedName = regexp.MustCompile(`(0x|fcn\.|arg_|var_)[0-9a-z]{1,8}`)

type rawInstruction struct {
	Opcode string `json:"opcode"`
}

// Listing extracts a cleaned disassembly listing from the optional disasm
// section: one entry per instruction, with generated names collapsed to
// "var" so listings of the same code are comparable across load addresses.
// Returns nil when the section is absent; the section is optional and its
// absence is never an error.
func Listing(raw engine.RawOutput) ([]string, error) {
	doc, ok := raw[engine.SectionDisasm]
	if !ok {
		return nil, nil
	}
	var instructions []rawInstruction
	if err := json.Unmarshal(doc, &instructions); err != nil {
		return nil, &MalformedOutputError{Section: engine.SectionDisasm, Err: err}
	}

	listing := make([]string, 0, len(instructions))
	for _, inst := range instructions {
		op := strings.Join(strings.Fields(inst.Opcode), " ")
		if op == "" {
			continue
		}
		op = strings.ReplaceAll(op, "int3", "int")
		op = generatedName.ReplaceAllString(op, "var")
		listing = append(listing, op)
	}
	return listing, nil
}
