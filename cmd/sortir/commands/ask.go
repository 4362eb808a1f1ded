package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/sortir-go/internal/logging"
	"github.com/54b3r/sortir-go/internal/responder"
)

// NewAskCmd constructs the `sortir ask` command, which answers a single
// question from the index and prints the reply to stdout.
func NewAskCmd() *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask for Paris event recommendations",
		Long: `Answer one question about cultural events in Paris.

The question is embedded, the closest events are retrieved from the index
and the chat model answers from them only. A model failure prints the
standard apology rather than an error.

Examples:
  sortir ask "un concert gratuit ce week-end ?"
  sortir ask --sources "une expo photo dans le Marais"
  MODEL_PROVIDER=ollama sortir ask "que faire avec des enfants ?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := buildAssistant(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.backend.close()

			reply := a.responder.Respond(ctx, strings.Join(args, " "), nil)

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, reply.Text)
			if showSources && len(reply.Results) > 0 {
				fmt.Fprintln(w)
				for _, r := range reply.Results {
					m := r.Chunk.Metadata
					fmt.Fprintf(w, "- %s (%s) %s\n", m.Title, m.LocationName,
						responder.FormatDateRange(m.FirstDateBegin, m.LastDateEnd))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showSources, "sources", "s", false, "Print the retrieved events after the reply")

	return cmd
}
