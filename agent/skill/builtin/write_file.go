package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	skillx "github.com/jarvisd/jarvis/agent/skill"
)

type WriteFileOutput struct {
	Path     string `json:"path"`
	Bytes    int    `json:"bytes"`
	Appended bool   `json:"appended"`
}

// WriteFileSkill writes or appends text to a local file, creating parent
// directories as needed.
type WriteFileSkill struct{}

var _ skillx.Skill = (*WriteFileSkill)(nil)

func NewWriteFileSkill() *WriteFileSkill { return &WriteFileSkill{} }

func (s *WriteFileSkill) Name() string { return "write_file" }

func (s *WriteFileSkill) Description() string {
	return "Write text to a file, optionally appending."
}

func (s *WriteFileSkill) Schema() skillx.Schema {
	return skillx.Schema{
		"file_path": {Type: skillx.TypeString, Desc: "path of the file to write", Required: true},
		"content":   {Type: skillx.TypeString, Desc: "text to write", Required: true},
		"append":    {Type: skillx.TypeBoolean, Desc: "append instead of overwrite", Default: false},
	}
}

func (s *WriteFileSkill) Invoke(_ context.Context, params map[string]any) (any, error) {
	rawPath, err := stringParam(params, "file_path")
	if err != nil {
		return nil, err
	}
	path, err := expandPath(rawPath)
	if err != nil {
		return nil, err
	}
	content, err := stringParam(params, "content")
	if err != nil {
		return nil, err
	}
	appendMode := boolParam(params, "append", false)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create parent dirs for %q: %w", path, err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendMode {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	n, err := f.WriteString(content)
	if err != nil {
		return nil, fmt.Errorf("write %q: %w", path, err)
	}
	return WriteFileOutput{Path: path, Bytes: n, Appended: appendMode}, nil
}
