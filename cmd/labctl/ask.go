package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lever-lab/backend/internal/chat"
)

func newAskCmd() *cobra.Command {
	var showSQL bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question through the chat pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := openServices()
			if err != nil {
				return err
			}
			defer services.Close()

			answer, err := services.Pipeline.Ask(cmd.Context(), chat.NewHistory(chat.DefaultHistoryLimit), strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, answer.Text)
			if showSQL && answer.SQL != "" {
				fmt.Fprintf(out, "\n-- %s (%s)\n%s\n", answer.Path, answer.Duration.Round(time.Millisecond), answer.SQL)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSQL, "sql", false, "print the executed query")
	return cmd
}
