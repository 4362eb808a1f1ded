package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/sortir-go/internal/logging"
)

// evalQuestion is one input line of `sortir contexts`. Plain text lines are
// read as a question without ground truth.
type evalQuestion struct {
	Question    string `json:"question"`
	GroundTruth string `json:"ground_truth,omitempty"`
}

// evalRecord is one output line, the shape expected by the evaluation
// harness.
type evalRecord struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Contexts    []string `json:"contexts"`
	GroundTruth string   `json:"ground_truth,omitempty"`
}

// NewContextsCmd constructs the `sortir contexts` command, which answers a
// list of questions and exports question, answer and retrieved contexts as
// JSON lines for offline evaluation.
func NewContextsCmd() *cobra.Command {
	var in string
	var out string

	cmd := &cobra.Command{
		Use:   "contexts",
		Short: "Export answers and retrieved contexts for evaluation",
		Long: `Answer every question of an input file and write one JSON object per line:

  {"question": "...", "answer": "...", "contexts": ["..."], "ground_truth": "..."}

Input lines are either plain questions or JSON objects with "question" and
an optional "ground_truth". Blank lines are ignored. Each context is the
flat "title - venue - address - du begin au end - text" rendering.

Examples:
  sortir contexts --in questions.txt --out eval.jsonl
  cat questions.jsonl | sortir contexts > eval.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			var r io.Reader = cmd.InOrStdin()
			if in != "" && in != "-" {
				f, err := os.Open(in)
				if err != nil {
					return fmt.Errorf("contexts: %w", err)
				}
				defer func() { _ = f.Close() }()
				r = f
			}
			questions, err := readQuestions(r)
			if err != nil {
				return fmt.Errorf("contexts: %w", err)
			}
			if len(questions) == 0 {
				return fmt.Errorf("contexts: no question in input")
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("contexts: %w", err)
				}
				defer func() { _ = f.Close() }()
				w = f
			}

			a, err := buildAssistant(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("contexts: %w", err)
			}
			defer a.backend.close()

			enc := json.NewEncoder(w)
			enc.SetEscapeHTML(false)
			for i, q := range questions {
				reply := a.responder.Respond(ctx, q.Question, nil)
				rec := evalRecord{
					Question:    q.Question,
					Answer:      reply.Text,
					Contexts:    reply.Contexts,
					GroundTruth: q.GroundTruth,
				}
				if err := enc.Encode(rec); err != nil {
					return fmt.Errorf("contexts: write: %w", err)
				}
				log.Info("contexts: answered",
					slog.Int("n", i+1),
					slog.Int("of", len(questions)),
					slog.String("outcome", string(reply.Outcome)),
				)
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "Question file, one per line (default: stdin)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output JSON lines file (default: stdout)")

	return cmd
}

// readQuestions parses plain or JSON question lines.
func readQuestions(r io.Reader) ([]evalQuestion, error) {
	var questions []evalQuestion
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		q := evalQuestion{Question: line}
		if strings.HasPrefix(line, "{") {
			q = evalQuestion{}
			if err := json.Unmarshal([]byte(line), &q); err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			q.Question = strings.TrimSpace(q.Question)
			if q.Question == "" {
				return nil, fmt.Errorf("line %d: missing question", n)
			}
		}
		questions = append(questions, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return questions, nil
}
