package main

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"syscall"

	"github.com/allaspectsdev/promptstudio/internal/vault"
	"golang.org/x/term"
)

func cmdKeys(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: promptstudio keys <list|set|delete> [name]")
		os.Exit(1)
	}

	v := vault.New()

	switch args[0] {
	case "list":
		names := v.List()
		if len(names) == 0 {
			fmt.Println("No credentials stored")
			return
		}
		for _, n := range names {
			fmt.Printf("  %s: ****\n", n)
		}

	case "set":
		name := keyName(args, "set")
		fmt.Printf("Enter credential for %s: ", name)
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fatalf("error reading credential: %v", err)
		}
		if strings.TrimSpace(string(secret)) == "" {
			fatalf("empty credential, nothing stored")
		}
		if err := v.Set(name, string(secret)); err != nil {
			fatalf("error storing credential: %v", err)
		}
		fmt.Printf("Credential for %s stored successfully\n", name)

	case "delete":
		name := keyName(args, "delete")
		if err := v.Delete(name); err != nil {
			fatalf("error deleting credential: %v", err)
		}
		fmt.Printf("Credential for %s deleted\n", name)

	default:
		fatalf("unknown keys command: %s", args[0])
	}
}

func keyName(args []string, sub string) string {
	if len(args) < 2 {
		fmt.Printf("Usage: promptstudio keys %s <name>\n", sub)
		os.Exit(1)
	}
	name := strings.ToLower(args[1])
	if !slices.Contains(vault.KnownNames, name) {
		fatalf("unknown credential %q (known: %s)", name, strings.Join(vault.KnownNames, ", "))
	}
	return name
}
