package daemon

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"text/template"
)

const serviceLabel = "dev.allaspects.promptstudio"

const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.ProgramPath}}</string>
        <string>start</string>
        <string>--foreground</string>
    </array>
    <key>WorkingDirectory</key>
    <string>{{.DataDir}}</string>
    <key>KeepAlive</key>
    <true/>
    <key>RunAtLoad</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.DataDir}}/promptstudio.out.log</string>
    <key>StandardErrorPath</key>
    <string>{{.DataDir}}/promptstudio.err.log</string>
    <key>ProcessType</key>
    <string>Background</string>
    <key>ThrottleInterval</key>
    <integer>5</integer>
</dict>
</plist>
`

const systemdUnitTemplate = `[Unit]
Description=promptstudio prompt history daemon
After=network.target

[Service]
ExecStart={{.ProgramPath}} start --foreground
WorkingDirectory={{.DataDir}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

type serviceData struct {
	Label       string
	ProgramPath string
	DataDir     string
}

// serviceUnit describes the per-user service definition for one platform.
type serviceUnit struct {
	path    string
	content []byte
	// load and unload are the commands that (de)register the unit.
	load   [][]string
	unload [][]string
}

// renderService builds the service definition for goos under home.
func renderService(goos, home string, data serviceData) (*serviceUnit, error) {
	var (
		tmpl string
		u    serviceUnit
	)
	switch goos {
	case "darwin":
		tmpl = launchdPlistTemplate
		u.path = filepath.Join(home, "Library", "LaunchAgents", data.Label+".plist")
		u.load = [][]string{{"launchctl", "load", u.path}}
		u.unload = [][]string{{"launchctl", "unload", u.path}}
	case "linux":
		tmpl = systemdUnitTemplate
		name := "promptstudio.service"
		u.path = filepath.Join(home, ".config", "systemd", "user", name)
		u.load = [][]string{
			{"systemctl", "--user", "daemon-reload"},
			{"systemctl", "--user", "enable", "--now", name},
		}
		u.unload = [][]string{{"systemctl", "--user", "disable", "--now", name}}
	default:
		return nil, fmt.Errorf("service install is not supported on %s", goos)
	}

	t, err := template.New("service").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parsing service template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering service template: %w", err)
	}
	u.content = buf.Bytes()
	return &u, nil
}

// InstallService registers promptstudio as a per-user service: a launchd
// agent on macOS, a systemd user unit on Linux.
func InstallService(dataDir string, out io.Writer) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("determining executable path: %w", err)
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return fmt.Errorf("resolving executable symlinks: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	u, err := renderService(runtime.GOOS, home, serviceData{
		Label:       serviceLabel,
		ProgramPath: execPath,
		DataDir:     dataDir,
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(u.path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(u.path), err)
	}
	if err := os.WriteFile(u.path, u.content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", u.path, err)
	}
	fmt.Fprintf(out, "Service definition written to %s\n", u.path)

	// Unloading an unloaded unit fails harmlessly.
	runAll(u.unload, nil)
	if err := runAll(u.load, out); err != nil {
		return err
	}
	fmt.Fprintf(out, "Service %s loaded\n", serviceLabel)
	return nil
}

// UninstallService unloads and removes the service definition.
func UninstallService(out io.Writer) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}
	u, err := renderService(runtime.GOOS, home, serviceData{Label: serviceLabel})
	if err != nil {
		return err
	}

	runAll(u.unload, nil)
	if err := os.Remove(u.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", u.path, err)
	}
	fmt.Fprintf(out, "Service %s uninstalled\n", serviceLabel)
	return nil
}

func runAll(cmds [][]string, out io.Writer) error {
	for _, args := range cmds {
		cmd := exec.Command(args[0], args[1:]...)
		if out != nil {
			cmd.Stdout = out
			cmd.Stderr = out
		}
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
	}
	return nil
}
