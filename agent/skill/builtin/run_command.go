package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	skillx "github.com/jarvisd/jarvis/agent/skill"
)

// blockedFragments rejects the obviously destructive commands before they
// reach a shell. Not a sandbox; the skill runs with the agent's privileges.
var blockedFragments = []string{
	"rm -rf /",
	"mkfs",
	"dd if=",
	":(){",
	"> /dev/sda",
	"shutdown",
	"reboot",
}

const maxOutputBytes = 64 << 10

type RunCommandOutput struct {
	Command  string `json:"command"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// RunCommandSkill executes a shell command and captures its output.
type RunCommandSkill struct{}

var _ skillx.Skill = (*RunCommandSkill)(nil)

func NewRunCommandSkill() *RunCommandSkill { return &RunCommandSkill{} }

func (s *RunCommandSkill) Name() string { return "run_command" }

func (s *RunCommandSkill) Description() string {
	return "Run a shell command and return its output and exit code."
}

func (s *RunCommandSkill) Schema() skillx.Schema {
	return skillx.Schema{
		"command": {Type: skillx.TypeString, Desc: "shell command to execute", Required: true},
	}
}

func (s *RunCommandSkill) Invoke(ctx context.Context, params map[string]any) (any, error) {
	raw, err := stringParam(params, "command")
	if err != nil {
		return nil, err
	}
	command := strings.TrimSpace(raw)
	if command == "" {
		return nil, errors.New("command is empty")
	}
	if frag := blockedFragment(command); frag != "" {
		return nil, fmt.Errorf("command contains blocked fragment %q", frag)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	out := RunCommandOutput{
		Command: command,
		Stdout:  truncate(stdout.String(), maxOutputBytes),
		Stderr:  truncate(stderr.String(), maxOutputBytes),
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		return out, nil
	case errors.As(runErr, &exitErr):
		// Non-zero exit is a result, not an invocation failure.
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	default:
		return nil, fmt.Errorf("run command: %w", runErr)
	}
}

func blockedFragment(command string) string {
	lower := strings.ToLower(command)
	for _, frag := range blockedFragments {
		if strings.Contains(lower, frag) {
			return frag
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "... (truncated)"
}
