package program

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/hintbridge/hint"
	"github.com/chazu/hintbridge/vm"
)

const sampleProgram = `
[entry]
pc = 0
ap = 7
fp = 5

[[memory]]
segment = 1
offset = 3
value = "9"

[[memory]]
segment = 1
offset = 4
addr = [2, 0]

[[memory]]
segment = 0
offset = 0
value = "-1"

[structs.Point]
size = 2
[structs.Point.members.x]
offset = 0
type = "felt"
[structs.Point.members.y]
offset = 1

[[hints]]
pc = 0
code = "memory[ap] = ids.a"
ap-tracking = { group = 1, offset = 3 }
[hints.ids.a]
register = "fp"
offset = -2
[hints.ids.c]
immediate = "0x10"

[[hints]]
pc = 0
code = "x = 1"

[[hints]]
pc = 4
code = """
p = ids.p
y = p.y
"""
[hints.ids.p]
register = "ap"
offset = -1
dereference = true
type = "Point*"
path = []
ap-tracking = { group = 1, offset = 0 }
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(sampleProgram))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Entry != (Entry{Pc: 0, Ap: 7, Fp: 5}) {
		t.Errorf("entry = %+v", p.Entry)
	}
	if p.NumHints() != 3 {
		t.Errorf("NumHints = %d, want 3", p.NumHints())
	}
	at0 := p.Hints[0]
	if len(at0) != 2 || at0[0].Code != "memory[ap] = ids.a" || at0[1].Code != "x = 1" {
		t.Fatalf("hints at pc 0 out of order: %+v", at0)
	}
	if at0[0].ApTracking != (hint.ApTracking{Group: 1, Offset: 3}) {
		t.Errorf("ap tracking = %+v", at0[0].ApTracking)
	}

	a := at0[0].Ids["a"]
	if a.Register != hint.RegFP || a.Offset != -2 || a.CairoType != "felt" {
		t.Errorf("ids.a = %+v", a)
	}
	c := at0[0].Ids["c"]
	if c.Register != hint.RegNone || c.Immediate.Cmp(big.NewInt(16)) != 0 {
		t.Errorf("ids.c = %+v", c)
	}

	ptr := p.Hints[4][0].Ids["p"]
	if !ptr.Dereference || ptr.CairoType != "Point*" || ptr.Register != hint.RegAP {
		t.Errorf("ids.p = %+v", ptr)
	}

	pt, ok := p.Structs["Point"]
	if !ok || pt.Size != 2 || pt.Members["y"].Offset != 1 {
		t.Errorf("Point = %+v", pt)
	}

	if len(p.Cells) != 3 {
		t.Fatalf("cells = %d, want 3", len(p.Cells))
	}
	if got := p.Cells[1].Value(vm.StarkPrime); got != vm.AddrValue(vm.NewRelocatable(2, 0)) {
		t.Errorf("cell 1 = %v, want (2, 0)", got)
	}
	if got := p.Cells[2].Value(vm.StarkPrime); got != vm.FeltValue(vm.FeltFromInt64(-1, vm.StarkPrime)) {
		t.Errorf("cell 2 = %v, want p - 1", got)
	}
	if p.MaxSegment() != 2 {
		t.Errorf("MaxSegment = %d, want 2", p.MaxSegment())
	}
}

func TestParseInvalid(t *testing.T) {
	tests := map[string]string{
		"bad register": `
[[hints]]
pc = 0
code = "x"
[hints.ids.a]
register = "sp"
`,
		"no base": `
[[hints]]
pc = 0
code = "x"
[hints.ids.a]
offset = 1
`,
		"value and addr": `
[[memory]]
segment = 1
value = "1"
addr = [0, 0]
`,
		"bad value": `
[[memory]]
segment = 1
value = "twelve"
`,
		"member out of range": `
[structs.S]
size = 1
[structs.S.members.m]
offset = 3
`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(src)); !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestParseSyntaxError(t *testing.T) {
	if _, err := Parse([]byte("[entry\npc = 0")); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.toml")
	if err := os.WriteFile(path, []byte(sampleProgram), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(p.Hints[4]) != 1 {
		t.Errorf("hints at pc 4 = %d, want 1", len(p.Hints[4]))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}
