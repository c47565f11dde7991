// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"querydeck/cli/internal/config"
	"querydeck/cli/internal/httperrors"
	"querydeck/cli/internal/keychain"
	"querydeck/cli/internal/pagination"
	"querydeck/cli/internal/presto"
	"querydeck/cli/internal/terminal"
)

// connectCmd prompts for coordinator connection settings, verifies them with
// a trivial statement round-trip, then stores the settings in the config file
// and the password in the OS keychain. Settings are re-read on every run, so
// reconnecting takes effect immediately.
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Configure and verify the connection to the query engine",
	Long: `The connect command prompts for the coordinator host, port, user and
optional catalog/schema, verifies the connection by running "select 1", and
saves the settings. The password, if any, is stored only in the OS keychain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		current, err := config.Load()
		if err != nil {
			current = config.Defaults()
		}
		reader := bufio.NewReader(os.Stdin)

		cfg := current
		cfg.Host = promptString(reader, "Host", current.Host)
		cfg.Port = promptInt(reader, "Port", current.Port)
		cfg.User = promptString(reader, "User", current.User)
		cfg.Catalog = promptString(reader, "Catalog (optional)", current.Catalog)
		cfg.Schema = promptString(reader, "Schema (optional)", current.Schema)
		cfg.SSL = promptBool(reader, "Use SSL", current.SSL)
		if cfg.SSL {
			cfg.SSLVerify = promptBool(reader, "Verify SSL certificates", current.SSLVerify)
		}
		cfg.Trino = promptBool(reader, "Trino-flavored headers", current.Trino)

		if err := cfg.Validate(); err != nil {
			return err
		}

		password, err := promptPassword("Password (empty for none)")
		if err != nil {
			return err
		}

		// Verify before saving anything.
		stopSpinner := startInlineSpinner(os.Stderr, "verifying connection", []string{"-", "\\", "|", "/"}, spinnerInterval)
		client, err := presto.NewClient(cfg, password, "querydeck-connect")
		if err != nil {
			stopSpinner()
			return err
		}
		_, err = pagination.Run(cmd.Context(), presto.NewAdapter(client, "select 1"), "select 1", 1)
		stopSpinner()
		if err != nil {
			pterm.Error.Println(httperrors.Describe(err, cfg.Host))
			return err
		}

		if err := config.Save(cfg); err != nil {
			return err
		}
		if password != "" {
			km, err := keychain.GetManager()
			if err != nil {
				pterm.Warning.Printf("settings saved, but the password could not be stored: %v\n", err)
				return nil
			}
			if err := km.SaveEnginePassword(password); err != nil {
				pterm.Warning.Printf("settings saved, but the password could not be stored: %v\n", err)
				return nil
			}
		}

		pterm.Success.Printf("connected to %s\n", cfg.ServerURL())
		return nil
	},
}

// promptString asks for a value, offering the current one as default.
func promptString(reader *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

// promptInt asks for an integer, keeping the default on empty or bad input.
func promptInt(reader *bufio.Reader, label string, def int) int {
	raw := promptString(reader, label, strconv.Itoa(def))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// promptBool asks a yes/no question.
func promptBool(reader *bufio.Reader, label string, def bool) bool {
	defLabel := "y/N"
	if def {
		defLabel = "Y/n"
	}
	fmt.Printf("%s [%s]: ", label, defLabel)
	line, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "true":
		return true
	case "n", "no", "false":
		return false
	default:
		return def
	}
}

// promptPassword reads a password without echoing, then clears the prompt
// line so the terminal scrollback holds no trace of the exchange.
func promptPassword(label string) (string, error) {
	fmt.Printf("%s: ", label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	terminal.ClearPreviousLines(len(label) + 2)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func init() {
	rootCmd.AddCommand(connectCmd)
}
