package sample

import (
	"bytes"
	"os"
	"path/filepath"
)

// Discovery walks a directory and returns paths that look like executable
// samples, identified by magic bytes rather than extension.
type Discovery struct {
	// MaxProbe is how many leading bytes are read to classify a file.
	// Zero means the default (64).
	MaxProbe int
	// IgnorePatterns are glob patterns (relative to the walk root) to skip.
	IgnorePatterns []string
}

var executableMagics = [][]byte{
	{0x7f, 'E', 'L', 'F'},          // ELF
	{'M', 'Z'},                     // PE / MZ stub
	{0xfe, 0xed, 0xfa, 0xce},       // Mach-O 32-bit
	{0xfe, 0xed, 0xfa, 0xcf},       // Mach-O 64-bit
	{0xce, 0xfa, 0xed, 0xfe},       // Mach-O 32-bit, swapped
	{0xcf, 0xfa, 0xed, 0xfe},       // Mach-O 64-bit, swapped
	{0xca, 0xfe, 0xba, 0xbe},       // Mach-O fat / Java class
	{'#', '!', '/'},                // script with shebang
	{0x00, 'a', 's', 'm'},          // WASM
	{'d', 'e', 'x', '\n'},          // DEX
}

// Discover walks root and returns all executable sample paths. Directories
// that never hold samples (.git, node_modules) are skipped, as are files
// matching the ignore patterns. Inaccessible files are skipped silently.
func (d *Discovery) Discover(root string) ([]string, error) {
	probe := d.MaxProbe
	if probe <= 0 {
		probe = 64
	}

	var paths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip inaccessible files
		}
		if info.IsDir() {
			base := info.Name()
			if base == ".git" || base == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || info.Size() == 0 {
			return nil
		}
		relPath, _ := filepath.Rel(root, path)
		if d.isIgnored(relPath) {
			return nil
		}
		if isExecutableFile(path, probe) {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

func (d *Discovery) isIgnored(relPath string) bool {
	for _, pattern := range d.IgnorePatterns {
		if matched, _ := filepath.Match(pattern, relPath); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, filepath.Base(relPath)); matched {
			return true
		}
	}
	return false
}

func isExecutableFile(path string, probe int) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, probe)
	n, err := f.Read(head)
	if n == 0 && err != nil {
		return false
	}
	return IsExecutable(head[:n])
}

// IsExecutable reports whether the leading bytes match a known executable
// container format.
func IsExecutable(head []byte) bool {
	for _, magic := range executableMagics {
		if bytes.HasPrefix(head, magic) {
			return true
		}
	}
	return false
}
