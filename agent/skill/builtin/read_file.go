package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	skillx "github.com/jarvisd/jarvis/agent/skill"
)

const maxReadBytes = 256 << 10

type ReadFileOutput struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
}

// ReadFileSkill reads a text file from the local filesystem.
type ReadFileSkill struct{}

var _ skillx.Skill = (*ReadFileSkill)(nil)

func NewReadFileSkill() *ReadFileSkill { return &ReadFileSkill{} }

func (s *ReadFileSkill) Name() string { return "read_file" }

func (s *ReadFileSkill) Description() string {
	return "Read a text file and return its contents."
}

func (s *ReadFileSkill) Schema() skillx.Schema {
	return skillx.Schema{
		"file_path": {Type: skillx.TypeString, Desc: "path of the file to read", Required: true},
	}
}

func (s *ReadFileSkill) Invoke(_ context.Context, params map[string]any) (any, error) {
	raw, err := stringParam(params, "file_path")
	if err != nil {
		return nil, err
	}
	path, err := expandPath(raw)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}

	out := ReadFileOutput{Path: path, Content: string(data)}
	if len(data) > maxReadBytes {
		out.Content = string(data[:maxReadBytes])
		out.Truncated = true
	}
	return out, nil
}

func expandPath(raw string) (string, error) {
	path := strings.TrimSpace(raw)
	if path == "" {
		return "", errors.New("file path is empty")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(path), nil
}
