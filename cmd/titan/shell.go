package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".stats"),
	readline.PcItem(".exit"),
	readline.PcItem("BEGIN"),
	readline.PcItem("COMMIT"),
	readline.PcItem("ROLLBACK"),
	readline.PcItem("PUT"),
	readline.PcItem("PUTNX"),
	readline.PcItem("GET"),
	readline.PcItem("DELETE"),
	readline.PcItem("SCAN"),
)

func newShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive transaction shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			return runInteractive(newSession(e.mgr, os.Stdout), e.cfg.DataDir)
		},
	}
}

// runInteractive reads commands until .exit, EOF or an interrupt on an empty line
func runInteractive(s *session, dataDir string) error {
	fmt.Println("Titan transaction shell")
	fmt.Println("Enter .help for usage hints.")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "titan> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".titan_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()
	defer s.close()

	for {
		rl.SetPrompt(prompt(dataDir, s.inTransaction()))

		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					return nil
				}
				continue
			}
			if readErr == io.EOF {
				fmt.Println("Goodbye!")
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		if s.execute(line) {
			return nil
		}
	}
}

func prompt(dataDir string, inTx bool) string {
	p := "titan"
	if dataDir != "" {
		p += ":" + dataDir
	}
	if inTx {
		p += "[TX]"
	}
	return p + "> "
}
