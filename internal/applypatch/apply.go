package applypatch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ChangeKind is the per-file outcome reported in the summary.
type ChangeKind byte

const (
	ChangeAdd    ChangeKind = 'A'
	ChangeUpdate ChangeKind = 'M'
	ChangeDelete ChangeKind = 'D'
)

// Change is one applied file operation.
type Change struct {
	Kind ChangeKind
	Path string
	// MovePath is the new location for a renaming update.
	MovePath string
}

// Report lists what an applied patch did, in patch order.
type Report struct {
	Changes []Change
}

// WriteSummary prints the success summary in the tool's output format:
//
//	Success. Updated the following files:
//	A hello.txt
//	M src/main.go
func (r *Report) WriteSummary(w io.Writer) error {
	if _, err := io.WriteString(w, "Success. Updated the following files:\n"); err != nil {
		return err
	}
	for _, change := range r.Changes {
		path := change.Path
		if change.MovePath != "" {
			path = change.MovePath
		}
		if _, err := fmt.Fprintf(w, "%c %s\n", change.Kind, path); err != nil {
			return err
		}
	}
	return nil
}

// Apply parses the patch text and applies every hunk under cwd. Relative
// paths resolve against cwd; the filesystem is only touched after the whole
// patch parses.
func Apply(patchText, cwd string) (*Report, error) {
	patch, err := ParsePatch(patchText)
	if err != nil {
		return nil, err
	}
	return ApplyHunks(patch.Hunks, cwd)
}

// ApplyHunks applies already-parsed hunks under cwd.
func ApplyHunks(hunks []Hunk, cwd string) (*Report, error) {
	report := &Report{}
	for _, hunk := range hunks {
		path := resolvePath(cwd, hunk.Path)
		switch hunk.Kind {
		case HunkAdd:
			if err := writeFile(path, hunk.Contents); err != nil {
				return nil, err
			}
			report.Changes = append(report.Changes, Change{Kind: ChangeAdd, Path: hunk.Path})
		case HunkDelete:
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("delete %s: %w", hunk.Path, err)
			}
			report.Changes = append(report.Changes, Change{Kind: ChangeDelete, Path: hunk.Path})
		case HunkUpdate:
			original, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", hunk.Path, err)
			}
			updated, err := updatedContents(string(original), hunk.Chunks, hunk.Path)
			if err != nil {
				return nil, err
			}
			target := path
			if hunk.MovePath != "" {
				target = resolvePath(cwd, hunk.MovePath)
			}
			if err := writeFile(target, updated); err != nil {
				return nil, err
			}
			if target != path {
				if err := os.Remove(path); err != nil {
					return nil, fmt.Errorf("remove %s after move: %w", hunk.Path, err)
				}
			}
			report.Changes = append(report.Changes, Change{
				Kind:     ChangeUpdate,
				Path:     hunk.Path,
				MovePath: hunk.MovePath,
			})
		}
	}
	return report, nil
}

func resolvePath(cwd, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(cwd, path)
}

func writeFile(path, contents string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// updatedContents runs every chunk against the file, in order, each one
// searching forward from where the previous chunk left off.
func updatedContents(original string, chunks []Chunk, displayPath string) (string, error) {
	hadTrailingNewline := original == "" || strings.HasSuffix(original, "\n")
	lines := splitLines(original)

	out := make([]string, 0, len(lines))
	srcIdx := 0
	for _, chunk := range chunks {
		searchFrom := srcIdx
		if chunk.ChangeContext != "" {
			idx, ok := seekSequence(lines, []string{chunk.ChangeContext}, searchFrom, false)
			if !ok {
				return "", fmt.Errorf("apply to %s: cannot find context line %q", displayPath, chunk.ChangeContext)
			}
			searchFrom = idx + 1
		}

		var idx int
		if len(chunk.OldLines) == 0 {
			// Pure insertion with no anchor goes at the end of the file.
			idx = len(lines)
		} else {
			found, ok := seekSequence(lines, chunk.OldLines, searchFrom, chunk.IsEndOfFile)
			if !ok {
				return "", fmt.Errorf("apply to %s: cannot find lines:\n%s", displayPath, strings.Join(chunk.OldLines, "\n"))
			}
			idx = found
		}

		out = append(out, lines[srcIdx:idx]...)
		out = append(out, chunk.NewLines...)
		srcIdx = idx + len(chunk.OldLines)
	}
	out = append(out, lines[srcIdx:]...)

	contents := strings.Join(out, "\n")
	if len(out) > 0 && hadTrailingNewline {
		contents += "\n"
	}
	return contents, nil
}

func splitLines(contents string) []string {
	if contents == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(contents, "\n"), "\n")
}

// seekSequence finds pattern within lines at or after start. Matching is
// attempted in three passes of decreasing strictness: exact, ignoring
// trailing whitespace, then ignoring surrounding whitespace; the strictest
// pass that matches anywhere wins. With eof set, a match ending at the last
// line is preferred before falling back to a forward scan.
func seekSequence(lines, pattern []string, start int, eof bool) (int, bool) {
	if len(pattern) == 0 {
		return start, false
	}
	if eof && len(lines) >= len(pattern) {
		if idx := len(lines) - len(pattern); idx >= start {
			if matchesAt(lines, pattern, idx, matchExact) ||
				matchesAt(lines, pattern, idx, matchTrimEnd) ||
				matchesAt(lines, pattern, idx, matchTrimAll) {
				return idx, true
			}
		}
	}
	for _, match := range []func(a, b string) bool{matchExact, matchTrimEnd, matchTrimAll} {
		for idx := start; idx+len(pattern) <= len(lines); idx++ {
			if matchesAt(lines, pattern, idx, match) {
				return idx, true
			}
		}
	}
	return 0, false
}

func matchesAt(lines, pattern []string, idx int, match func(a, b string) bool) bool {
	for i, want := range pattern {
		if !match(lines[idx+i], want) {
			return false
		}
	}
	return true
}

func matchExact(a, b string) bool { return a == b }
func matchTrimEnd(a, b string) bool { return strings.TrimRight(a, " \t") == strings.TrimRight(b, " \t") }
func matchTrimAll(a, b string) bool { return strings.TrimSpace(a) == strings.TrimSpace(b) }
