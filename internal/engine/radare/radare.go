// Package radare adapts radare2 as an analysis engine. It drives a single
// radare2 subprocess per sample with a fixed command script and captures
// the JSON documents the script emits on stdout.
package radare

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shingmt/prp-disasm/internal/engine"
	"github.com/shingmt/prp-disasm/internal/sample"
)

// DefaultBinary is the radare2 executable looked up on PATH when the
// config does not name one.
const DefaultBinary = "radare2"

// killGrace is how long Wait may linger after the subprocess is signaled
// before its pipes are forcibly torn down.
const killGrace = 2 * time.Second

// Config is the process-wide engine configuration, resolved once at
// startup and passed by reference into the adapter.
type Config struct {
	// Binary is the radare2 executable path. Empty means DefaultBinary.
	Binary string
	// IncludeDisasm adds a disassembly listing section to the raw output.
	IncludeDisasm bool
	// DisasmInstructions bounds the disassembly listing. Zero means 256.
	DisasmInstructions int
	// IncludeCallGraph adds a global call graph section to the raw output.
	IncludeCallGraph bool
}

// Adapter invokes radare2 as a subprocess.
type Adapter struct {
	cfg *Config
}

// New creates an adapter bound to the given config. The config must not be
// mutated after the adapter is created.
func New(cfg *Config) *Adapter {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Name() string { return "radare2" }

// scriptSections are the sections produced by the command script, in the
// order their JSON documents appear on stdout.
func (a *Adapter) scriptSections() ([]string, []string) {
	commands := []string{"aaa", "ij", "aflj", "izj", "iij", "iEj"}
	sections := []string{
		engine.SectionInfo,
		engine.SectionFunctions,
		engine.SectionStrings,
		engine.SectionImports,
		engine.SectionExports,
	}
	if a.cfg.IncludeCallGraph {
		commands = append(commands, "agCj")
		sections = append(sections, engine.SectionCallGraph)
	}
	if a.cfg.IncludeDisasm {
		n := a.cfg.DisasmInstructions
		if n <= 0 {
			n = 256
		}
		commands = append(commands, "s entry0", "pdj "+strconv.Itoa(n))
		sections = append(sections, engine.SectionDisasm)
	}
	return commands, sections
}

// Analyze runs radare2 against the sample and returns its raw structured
// output. Exactly one subprocess is spawned per call and it is always
// reaped, including on timeout and caller cancellation.
func (a *Adapter) Analyze(ctx context.Context, s *sample.Sample, timeout time.Duration) (engine.RawOutput, error) {
	path, cleanup, err := s.MaterializedPath()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrEngineUnavailable, err)
	}
	defer cleanup()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	commands, sections := a.scriptSections()

	binary := a.cfg.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	// -N skips user rc files, -2 silences stderr noise inside r2,
	// -q quits after the script runs.
	cmd := exec.CommandContext(runCtx, binary, "-N", "-2", "-q",
		"-c", strings.Join(commands, ";"), "--", path)
	cmd.WaitDelay = killGrace

	// Run the engine in its own process group and kill the whole group on
	// timeout or cancellation, so children the engine spawns are not
	// orphaned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if err == syscall.ESRCH {
			return os.ErrProcessDone
		}
		return err
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: launching %s: %v", engine.ErrEngineUnavailable, binary, err)
	}

	waitErr := cmd.Wait()

	if runCtx.Err() != nil && ctx.Err() == nil {
		// Return whatever complete documents made it out before the kill,
		// so the caller can salvage a partial normalization.
		partial := parsePartial(stdout.Bytes(), sections)
		return partial, fmt.Errorf("%w after %s", engine.ErrTimedOut, timeout)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("analysis canceled: %w", context.Cause(ctx))
	}
	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		return nil, fmt.Errorf("%w: %s", engine.ErrEngineCrashed, msg)
	}

	raw, err := parseSections(stdout.Bytes(), sections)
	if err != nil {
		return nil, err
	}

	// radare2 has no version-stable JSON entropy command; compute it from
	// the sample bytes so the normalizer sees a uniform section.
	entropy, err := json.Marshal(engine.ShannonEntropy(s.Content()))
	if err == nil {
		raw[engine.SectionEntropy] = entropy
	}

	return raw, nil
}

// parseSections pairs the JSON documents on stdout with the expected
// sections in script order. Non-JSON lines (analysis warnings) are
// skipped; a document-count mismatch means the engine output is not
// usable.
func parseSections(out []byte, sections []string) (engine.RawOutput, error) {
	var docs []json.RawMessage
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		docs = append(docs, json.RawMessage(bytes.Clone(line)))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading engine output: %v", engine.ErrEngineCrashed, err)
	}
	if len(docs) != len(sections) {
		return nil, fmt.Errorf("%w: expected %d output documents, got %d",
			engine.ErrEngineCrashed, len(sections), len(docs))
	}

	raw := make(engine.RawOutput, len(sections)+1)
	for i, section := range sections {
		raw[section] = docs[i]
	}
	return raw, nil
}

// parsePartial pairs however many documents were produced with their
// sections in script order. Returns nil when nothing usable came out.
func parsePartial(out []byte, sections []string) engine.RawOutput {
	var docs []json.RawMessage
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		docs = append(docs, json.RawMessage(bytes.Clone(line)))
	}
	if len(docs) == 0 {
		return nil
	}
	raw := make(engine.RawOutput, len(docs))
	for i, doc := range docs {
		if i >= len(sections) {
			break
		}
		raw[sections[i]] = doc
	}
	return raw
}

var _ engine.Engine = (*Adapter)(nil)

// IsNotFound reports whether err stems from a missing engine binary, so
// callers can distinguish installation problems from sample problems.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
