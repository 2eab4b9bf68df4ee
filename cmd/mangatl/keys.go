package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/mangatl/mangatl/internal/vault"
	"golang.org/x/term"
)

func cmdKeys(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: mangatl keys <list|set|delete> [engine_id]")
		os.Exit(1)
	}

	v := vault.New()

	switch args[0] {
	case "list":
		ids, err := v.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error listing keys: %v\n", err)
			os.Exit(1)
		}
		if len(ids) == 0 {
			fmt.Println("No engine API keys stored")
			return
		}
		for _, id := range ids {
			fmt.Printf("  %s: ****\n", id)
		}

	case "set":
		if len(args) < 2 {
			fmt.Println("Usage: mangatl keys set <engine_id>")
			os.Exit(1)
		}
		engineID := strings.ToLower(args[1])
		fmt.Printf("Enter API key for %s: ", engineID)
		key, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading key: %v\n", err)
			os.Exit(1)
		}
		if err := v.Set(engineID, string(key)); err != nil {
			fmt.Fprintf(os.Stderr, "error storing key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Key for %s stored successfully\n", engineID)

	case "delete":
		if len(args) < 2 {
			fmt.Println("Usage: mangatl keys delete <engine_id>")
			os.Exit(1)
		}
		engineID := strings.ToLower(args[1])
		if err := v.Delete(engineID); err != nil {
			fmt.Fprintf(os.Stderr, "error deleting key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Key for %s deleted\n", engineID)

	default:
		fmt.Fprintf(os.Stderr, "unknown keys command: %s\n", args[0])
		os.Exit(1)
	}
}
