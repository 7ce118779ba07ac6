// Package frontmatter serializes tasks to and from markdown files with a
// YAML metadata block. The codec owns the file format only; date strings
// pass through untouched.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/taskd/internal/task"
)

const delimiter = "---"

// ParseError marks a malformed stored task file. It indicates storage
// corruption rather than user error, so listings surface it instead of
// silently skipping the file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse task file %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	errNoFrontmatter = errors.New("missing frontmatter block")
	errMissingID     = errors.New("missing required field: id")
	errMissingTitle  = errors.New("missing required field: title")
	errMissingStatus = errors.New("missing required field: status")
)

// Encode renders the task as a frontmatter block followed by a blank line
// and the markdown body.
func Encode(t *task.Task) ([]byte, error) {
	meta, err := yaml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	buf.Write(meta)
	buf.WriteString(delimiter + "\n")
	if t.Content != "" {
		buf.WriteString("\n")
		buf.WriteString(strings.TrimRight(t.Content, "\n"))
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode. The path parameter records where the
// blob came from and is stored on the returned task. Unknown frontmatter
// keys survive a decode/encode round trip.
func Decode(raw []byte, path string) (*task.Task, error) {
	meta, body, err := split(raw)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	var t task.Task
	if err := yaml.Unmarshal(meta, &t); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	switch {
	case t.ID == "":
		return nil, &ParseError{Path: path, Err: errMissingID}
	case t.Title == "":
		return nil, &ParseError{Path: path, Err: errMissingTitle}
	case t.Status == "":
		return nil, &ParseError{Path: path, Err: errMissingStatus}
	}
	if !t.Status.Valid() {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("%w: %q", task.ErrInvalidStatus, t.Status)}
	}

	t.Content = strings.Trim(body, "\n")
	t.Path = path
	return &t, nil
}

// split separates the frontmatter block from the markdown body.
func split(raw []byte) (meta []byte, body string, err error) {
	s := string(raw)
	if !strings.HasPrefix(s, delimiter+"\n") {
		return nil, "", errNoFrontmatter
	}
	rest := s[len(delimiter)+1:]
	end := strings.Index(rest, "\n"+delimiter)
	if end < 0 {
		return nil, "", errNoFrontmatter
	}
	meta = []byte(rest[:end+1])
	body = rest[end+1+len(delimiter):]
	body = strings.TrimPrefix(body, "\n")
	return meta, body, nil
}
