// Package manifest handles hintbridge.toml run configuration.
package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/BurntSushi/toml"
	"github.com/holiman/uint256"

	"github.com/chazu/hintbridge/hint"
	"github.com/chazu/hintbridge/vm"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "hintbridge.toml"

// Defaults applied by Load.
const (
	DefaultAddr       = "127.0.0.1:8700"
	DefaultSessionTTL = 10 * time.Minute
)

// ErrInvalid is returned when a manifest does not match the schema.
var ErrInvalid = errors.New("invalid manifest")

//go:embed schema.cue
var schemaSource string

// Manifest represents a hintbridge.toml configuration.
type Manifest struct {
	VM         VMConfig          `toml:"vm" json:"vm"`
	Program    ProgramConfig     `toml:"program" json:"program"`
	Output     OutputConfig      `toml:"output" json:"output"`
	Log        LogConfig         `toml:"log" json:"log"`
	Server     ServerConfig      `toml:"server" json:"server"`
	Signatures []SignatureConfig `toml:"signatures" json:"signatures,omitempty"`

	// Dir is the directory containing the hintbridge.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// VMConfig configures the machine.
type VMConfig struct {
	Prime string `toml:"prime" json:"prime,omitempty"`
	Trace bool   `toml:"trace" json:"trace"`
}

// ProgramConfig names the program and the instruction trace to replay.
type ProgramConfig struct {
	Hints string `toml:"hints" json:"hints,omitempty"`
	Trace string `toml:"trace" json:"trace,omitempty"`
	Steps int    `toml:"steps" json:"steps,omitempty"`
	EndPC *int   `toml:"end-pc" json:"end-pc,omitempty"`
}

// OutputConfig configures run outputs.
type OutputConfig struct {
	Snapshot string `toml:"snapshot" json:"snapshot,omitempty"`
	Trace    string `toml:"trace" json:"trace,omitempty"`
	History  string `toml:"history" json:"history,omitempty"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file,omitempty"`
}

// ServerConfig configures the RunService listener.
type ServerConfig struct {
	Addr       string `toml:"addr" json:"addr,omitempty"`
	SessionTTL string `toml:"session-ttl" json:"session-ttl,omitempty"`
}

// SignatureConfig is one signature supplied before the run.
type SignatureConfig struct {
	Segment int    `toml:"segment" json:"segment"`
	Offset  int    `toml:"offset" json:"offset"`
	R       string `toml:"r" json:"r"`
	S       string `toml:"s" json:"s"`
}

// Load parses the hintbridge.toml file in dir.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a manifest file at path.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	// Defaults
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultAddr
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a hintbridge.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks m against the embedded schema and the value formats
// the schema cannot express.
func (m *Manifest) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("manifest schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Manifest")).Unify(ctx.Encode(m))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, cueerrors.Details(err, nil))
	}

	if _, err := m.Prime(); err != nil {
		return err
	}
	if m.Server.SessionTTL != "" {
		if _, err := time.ParseDuration(m.Server.SessionTTL); err != nil {
			return fmt.Errorf("%w: server.session-ttl: %v", ErrInvalid, err)
		}
	}
	return nil
}

// Path resolves p against the manifest directory. Empty stays empty.
func (m *Manifest) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// Prime returns the configured field modulus, or nil for the default.
func (m *Manifest) Prime() (*uint256.Int, error) {
	if m.VM.Prime == "" {
		return nil, nil
	}
	p, err := vm.ParsePrime(m.VM.Prime)
	if err != nil {
		return nil, fmt.Errorf("%w: vm.prime: %w", ErrInvalid, err)
	}
	return p, nil
}

// SessionTTL returns how long idle server sessions live.
func (m *Manifest) SessionTTL() time.Duration {
	if d, err := time.ParseDuration(m.Server.SessionTTL); err == nil && d > 0 {
		return d
	}
	return DefaultSessionTTL
}

// SignatureTable builds the signature side-channel from [[signatures]].
func (m *Manifest) SignatureTable() (*hint.Signatures, error) {
	prime, err := m.Prime()
	if err != nil {
		return nil, err
	}
	if prime == nil {
		prime = vm.StarkPrime
	}
	sigs := hint.NewSignatures()
	for i, s := range m.Signatures {
		r, ok := new(big.Int).SetString(s.R, 0)
		if !ok {
			return nil, fmt.Errorf("%w: signatures[%d].r %q", ErrInvalid, i, s.R)
		}
		sv, ok := new(big.Int).SetString(s.S, 0)
		if !ok {
			return nil, fmt.Errorf("%w: signatures[%d].s %q", ErrInvalid, i, s.S)
		}
		sigs.Add(vm.NewRelocatable(s.Segment, s.Offset), vm.Signature{
			R: vm.FeltFromBig(r, prime),
			S: vm.FeltFromBig(sv, prime),
		})
	}
	return sigs, nil
}
