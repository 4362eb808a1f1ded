package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/54b3r/sortir-go/internal/logging"
	"github.com/54b3r/sortir-go/internal/responder"
)

// turnResponder answers one conversation turn. *responder.Responder
// satisfies it.
type turnResponder interface {
	Respond(ctx context.Context, userText string, history []responder.Turn) *responder.Reply
}

// NewChatCmd constructs the `sortir chat` command, an interactive terminal
// conversation. History is kept in memory and sent with each turn when
// SORTIR_HISTORY_DEPTH is set.
func NewChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation in the terminal",
		Long: `Start an interactive conversation in the terminal.

Type a question and press enter. Commands:
  /reset   start a new conversation
  /quit    exit (Ctrl-D works too)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := buildAssistant(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer a.backend.close()

			in := cmd.InOrStdin()
			return runChat(ctx, a.responder, in, cmd.OutOrStdout(), isTerminal(in))
		},
	}
}

// runChat reads one question per line from in until EOF, /quit or ctx is
// done. Failed turns are shown but left out of the history.
func runChat(ctx context.Context, r turnResponder, in io.Reader, w io.Writer, interactive bool) error {
	history := []responder.Turn{{Role: responder.RoleAssistant, Content: responder.Greeting}}
	fmt.Fprintln(w, responder.Greeting)

	scanner := bufio.NewScanner(in)
	for ctx.Err() == nil {
		if interactive {
			fmt.Fprint(w, "> ")
		}
		if !scanner.Scan() {
			if interactive {
				fmt.Fprintln(w)
			}
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			history = history[:1]
			fmt.Fprintln(w, responder.Greeting)
			continue
		}

		reply := r.Respond(ctx, line, history)
		fmt.Fprintln(w, reply.Text)
		if reply.Outcome == responder.OutcomeApology {
			continue
		}
		history = append(history,
			responder.Turn{Role: responder.RoleUser, Content: line},
			responder.Turn{Role: responder.RoleAssistant, Content: reply.Text},
		)
	}
	return nil
}

// isTerminal reports whether r is an interactive terminal. Piped input gets
// no prompt.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
