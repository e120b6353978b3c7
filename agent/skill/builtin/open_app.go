package builtin

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	skillx "github.com/jarvisd/jarvis/agent/skill"
)

// appAliases normalizes the spoken names users actually say to the binary or
// bundle the host launcher understands.
var appAliases = map[string]string{
	"chrome":        "google chrome",
	"google":        "google chrome",
	"code":          "visual studio code",
	"vscode":        "visual studio code",
	"vs code":       "visual studio code",
	"terminal":      "terminal",
	"files":         "file manager",
	"file explorer": "file manager",
}

type OpenAppOutput struct {
	App      string `json:"app"`
	Launched bool   `json:"launched"`
}

// OpenAppSkill launches a desktop application through the host launcher.
type OpenAppSkill struct {
	goos string

	// runCommand is swapped in tests so nothing actually launches.
	runCommand func(ctx context.Context, name string, args ...string) error
}

var _ skillx.Skill = (*OpenAppSkill)(nil)

func NewOpenAppSkill() *OpenAppSkill {
	return &OpenAppSkill{
		goos: runtime.GOOS,
		runCommand: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

func (s *OpenAppSkill) Name() string { return "open_app" }

func (s *OpenAppSkill) Description() string {
	return "Open a desktop application by name."
}

func (s *OpenAppSkill) Schema() skillx.Schema {
	return skillx.Schema{
		"app_name": {Type: skillx.TypeString, Desc: "application to open", Required: true},
	}
}

func (s *OpenAppSkill) Invoke(ctx context.Context, params map[string]any) (any, error) {
	raw, err := stringParam(params, "app_name")
	if err != nil {
		return nil, err
	}
	app := normalizeAppName(raw)
	if app == "" {
		return nil, fmt.Errorf("app name is empty")
	}

	name, args, err := launcherFor(s.goos, app)
	if err != nil {
		return nil, err
	}
	if err := s.runCommand(ctx, name, args...); err != nil {
		return nil, fmt.Errorf("launch %q: %w", app, err)
	}
	return OpenAppOutput{App: app, Launched: true}, nil
}

func normalizeAppName(raw string) string {
	app := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := appAliases[app]; ok {
		return alias
	}
	return app
}

func launcherFor(goos, app string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{"-a", app}, nil
	case "linux":
		// gtk-launch wants a desktop id; xdg-open only handles files and
		// URLs. A plain invocation through the shell covers most installs.
		return "sh", []string{"-c", fmt.Sprintf("%s >/dev/null 2>&1 &", shellQuote(linuxBinary(app)))}, nil
	case "windows":
		return "cmd", []string{"/C", "start", "", app}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform %q", goos)
	}
}

func linuxBinary(app string) string {
	switch app {
	case "google chrome":
		return "google-chrome"
	case "visual studio code":
		return "code"
	case "file manager":
		return "nautilus"
	case "terminal":
		return "x-terminal-emulator"
	}
	return strings.ReplaceAll(app, " ", "-")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
