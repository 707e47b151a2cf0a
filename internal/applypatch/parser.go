// Package applypatch parses and applies the agent patch format:
//
//	*** Begin Patch
//	*** Add File: hello.txt
//	+Hello world
//	*** Update File: src/main.go
//	@@ func main() {
//	-	old()
//	+	new()
//	*** Delete File: stale.txt
//	*** End Patch
//
// Update hunks locate their target lines by context with graduated
// whitespace tolerance, so a patch written against slightly reformatted
// source still applies.
package applypatch

import (
	"fmt"
	"strings"
)

const (
	beginPatchMarker = "*** Begin Patch"
	endPatchMarker   = "*** End Patch"
	addFileMarker    = "*** Add File: "
	deleteFileMarker = "*** Delete File: "
	updateFileMarker = "*** Update File: "
	moveToMarker     = "*** Move to: "
	endOfFileMarker  = "*** End of File"
	chunkMarker      = "@@"
)

// HunkKind distinguishes the three file operations a patch can request.
type HunkKind uint8

const (
	HunkAdd HunkKind = iota + 1
	HunkDelete
	HunkUpdate
)

// Hunk is one file operation within a patch.
type Hunk struct {
	Kind HunkKind
	Path string

	// Contents is the full new file body for an add hunk.
	Contents string

	// MovePath, when set on an update hunk, renames the file after the edit.
	MovePath string

	// Chunks are the edits of an update hunk, in file order.
	Chunks []Chunk
}

// Chunk is one contiguous edit within an update hunk. OldLines (context plus
// deletions) are located in the file and replaced by NewLines (context plus
// additions).
type Chunk struct {
	// ChangeContext is the `@@ <line>` locator, sought before OldLines.
	ChangeContext string
	OldLines      []string
	NewLines      []string
	// IsEndOfFile anchors the match to the end of the file.
	IsEndOfFile bool
}

// Patch is a parsed patch body.
type Patch struct {
	Hunks []Hunk
}

// ParseError reports where in the patch text parsing failed.
type ParseError struct {
	Line    int // 1-based line within the patch text
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid patch (line %d): %s", e.Line, e.Message)
}

// ParsePatch parses a complete patch body, envelope markers included.
func ParsePatch(text string) (*Patch, error) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != beginPatchMarker {
		return nil, &ParseError{Line: 1, Message: fmt.Sprintf("patch must start with %q", beginPatchMarker)}
	}
	if strings.TrimSpace(lines[len(lines)-1]) != endPatchMarker {
		return nil, &ParseError{Line: len(lines), Message: fmt.Sprintf("patch must end with %q", endPatchMarker)}
	}

	p := &parser{lines: lines[1 : len(lines)-1], offset: 2}
	patch := &Patch{}
	for !p.done() {
		hunk, err := p.parseHunk()
		if err != nil {
			return nil, err
		}
		patch.Hunks = append(patch.Hunks, hunk)
	}
	if len(patch.Hunks) == 0 {
		return nil, &ParseError{Line: 1, Message: "patch contains no file operations"}
	}
	return patch, nil
}

type parser struct {
	lines  []string
	pos    int
	offset int // first element of lines is this 1-based line of the patch text
}

func (p *parser) done() bool      { return p.pos >= len(p.lines) }
func (p *parser) current() string { return p.lines[p.pos] }
func (p *parser) lineNumber() int { return p.pos + p.offset }
func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.lineNumber(), Message: fmt.Sprintf(format, args...)}
}

func (p *parser) parseHunk() (Hunk, error) {
	line := p.current()
	switch {
	case strings.HasPrefix(line, addFileMarker):
		return p.parseAdd(strings.TrimPrefix(line, addFileMarker))
	case strings.HasPrefix(line, deleteFileMarker):
		path := strings.TrimSpace(strings.TrimPrefix(line, deleteFileMarker))
		if path == "" {
			return Hunk{}, p.errorf("delete hunk requires a path")
		}
		p.pos++
		return Hunk{Kind: HunkDelete, Path: path}, nil
	case strings.HasPrefix(line, updateFileMarker):
		return p.parseUpdate(strings.TrimPrefix(line, updateFileMarker))
	default:
		return Hunk{}, p.errorf("expected a file operation marker, got %q", line)
	}
}

func (p *parser) parseAdd(path string) (Hunk, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Hunk{}, p.errorf("add hunk requires a path")
	}
	p.pos++

	var sb strings.Builder
	for !p.done() {
		line := p.current()
		if strings.HasPrefix(line, "*** ") {
			break
		}
		if !strings.HasPrefix(line, "+") {
			return Hunk{}, p.errorf("added file lines must start with '+', got %q", line)
		}
		sb.WriteString(line[1:])
		sb.WriteString("\n")
		p.pos++
	}
	return Hunk{Kind: HunkAdd, Path: path, Contents: sb.String()}, nil
}

func (p *parser) parseUpdate(path string) (Hunk, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Hunk{}, p.errorf("update hunk requires a path")
	}
	p.pos++

	hunk := Hunk{Kind: HunkUpdate, Path: path}
	if !p.done() && strings.HasPrefix(p.current(), moveToMarker) {
		hunk.MovePath = strings.TrimSpace(strings.TrimPrefix(p.current(), moveToMarker))
		if hunk.MovePath == "" {
			return Hunk{}, p.errorf("move marker requires a path")
		}
		p.pos++
	}

	var chunk *Chunk
	flush := func() {
		if chunk != nil && (len(chunk.OldLines) > 0 || len(chunk.NewLines) > 0) {
			hunk.Chunks = append(hunk.Chunks, *chunk)
		}
		chunk = nil
	}
	ensure := func() *Chunk {
		if chunk == nil {
			chunk = &Chunk{}
		}
		return chunk
	}

	for !p.done() {
		line := p.current()
		switch {
		case strings.HasPrefix(line, updateFileMarker),
			strings.HasPrefix(line, addFileMarker),
			strings.HasPrefix(line, deleteFileMarker):
			flush()
			if len(hunk.Chunks) == 0 {
				return Hunk{}, p.errorf("update hunk for %s has no chunks", path)
			}
			return hunk, nil
		case strings.TrimSpace(line) == endOfFileMarker:
			ensure().IsEndOfFile = true
			p.pos++
			flush()
		case line == chunkMarker || strings.HasPrefix(line, chunkMarker+" "):
			flush()
			chunk = &Chunk{ChangeContext: strings.TrimPrefix(strings.TrimPrefix(line, chunkMarker), " ")}
			p.pos++
		case strings.HasPrefix(line, "+"):
			c := ensure()
			c.NewLines = append(c.NewLines, line[1:])
			p.pos++
		case strings.HasPrefix(line, "-"):
			c := ensure()
			c.OldLines = append(c.OldLines, line[1:])
			p.pos++
		case strings.HasPrefix(line, " ") || line == "":
			// Context. A fully blank line stands for an empty context line,
			// which editors that strip trailing whitespace produce.
			text := strings.TrimPrefix(line, " ")
			c := ensure()
			c.OldLines = append(c.OldLines, text)
			c.NewLines = append(c.NewLines, text)
			p.pos++
		default:
			return Hunk{}, p.errorf("unexpected line in update hunk: %q", line)
		}
	}
	flush()
	if len(hunk.Chunks) == 0 {
		return Hunk{}, p.errorf("update hunk for %s has no chunks", path)
	}
	return hunk, nil
}
