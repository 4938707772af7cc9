package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/allaspectsdev/promptstudio/internal/config"
	"github.com/allaspectsdev/promptstudio/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		cmdStart(os.Args[2:])
	case "stop":
		cmdStop()
	case "status":
		cmdStatus()
	case "init-config":
		cmdInitConfig()
	case "config-export":
		cmdConfigExport(os.Args[2:])
	case "config-import":
		cmdConfigImport(os.Args[2:])
	case "service":
		cmdService(os.Args[2:])
	case "keys":
		cmdKeys(os.Args[2:])
	case "seed":
		cmdSeed(os.Args[2:])
	case "export":
		cmdExport(os.Args[2:])
	case "hook":
		cmdHook(os.Args[2:])
	case "version":
		fmt.Println(version.String())
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: promptstudio <command> [options]

Commands:
  start            Start the promptstudio daemon
  stop             Stop the running daemon
  status           Show daemon status and summary stats
  init-config      Generate default config file
  config-export    Export current config to a TOML file
  config-import    Import config from a TOML file
  service          Install or remove the user service (install|uninstall)
  keys             Manage workflow credentials (list|set|delete <name>)
  seed             Import user prompts from a JSONL transcript
  export           Export all conversations as JSONL (.zst compresses)
  hook             Send a prompt from an editor hook (JSON on stdin)
  version          Print version information
  help             Show this help message

Options:
  --foreground         Run in foreground (with 'start')
  --file=PATH          Transcript to import (with 'seed', default sampleData.jsonl)
  --session-id=ID      Target session (with 'seed' and 'hook')
  --prompt=TEXT        Original prompt (with 'hook', instead of stdin)
  --ai-prompt=TEXT     Rewritten prompt (with 'hook', instead of stdin)
  --url=URL            Server base URL (with 'hook', default from config)`)
}

// flagValue returns the value of --name=value or --name value in args.
func flagValue(args []string, name, def string) string {
	prefix := "--" + name
	for i, a := range args {
		if v, ok := strings.CutPrefix(a, prefix+"="); ok {
			return v
		}
		if a == prefix && i+1 < len(args) {
			return args[i+1]
		}
	}
	return def
}

// positional returns the first argument that is not a flag or a flag's
// separate value.
func positional(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--") {
			if !strings.Contains(a, "=") {
				i++
			}
			continue
		}
		return a
	}
	return ""
}

func loadConfig() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
