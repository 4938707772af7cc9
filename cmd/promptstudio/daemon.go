package main

import (
	"fmt"
	"os"

	"github.com/allaspectsdev/promptstudio/internal/config"
	"github.com/allaspectsdev/promptstudio/internal/daemon"
)

func cmdStart(args []string) {
	foreground := false
	for _, a := range args {
		if a == "--foreground" || a == "-f" {
			foreground = true
		}
	}

	cfg := loadConfig()
	if err := daemon.Run(cfg, foreground); err != nil {
		fatalf("error: %v", err)
	}
}

func cmdStop() {
	if err := daemon.Stop(loadConfig(), os.Stdout); err != nil {
		fatalf("error stopping daemon: %v", err)
	}
}

func cmdStatus() {
	if err := daemon.Status(loadConfig(), os.Stdout); err != nil {
		fatalf("%v", err)
	}
}

func cmdInitConfig() {
	if err := config.InitConfig(); err != nil {
		fatalf("error generating config: %v", err)
	}
}

func cmdConfigExport(args []string) {
	path := "promptstudio-export.toml"
	if len(args) > 0 {
		path = args[0]
	}
	loadConfig()
	if err := config.ExportConfig(path); err != nil {
		fatalf("error exporting config: %v", err)
	}
	fmt.Printf("Config exported to %s\n", path)
}

func cmdConfigImport(args []string) {
	if len(args) == 0 {
		fatalf("usage: promptstudio config-import <file>")
	}
	if err := config.ImportConfig(args[0]); err != nil {
		fatalf("error importing config: %v", err)
	}
	fmt.Printf("Config imported from %s\n", args[0])
}

func cmdService(args []string) {
	if len(args) == 0 {
		fatalf("usage: promptstudio service <install|uninstall>")
	}
	switch args[0] {
	case "install":
		cfg := loadConfig()
		if err := daemon.InstallService(cfg.Server.DataDir, os.Stdout); err != nil {
			fatalf("error installing service: %v", err)
		}
		fmt.Println("Service installed successfully")
	case "uninstall":
		if err := daemon.UninstallService(os.Stdout); err != nil {
			fatalf("error removing service: %v", err)
		}
		fmt.Println("Service removed")
	default:
		fatalf("unknown service command: %s", args[0])
	}
}
