package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/civicsignal/legisearch/internal/model"
	"github.com/civicsignal/legisearch/internal/orchestrator"
)

var askShowEvents bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question and stream the answer to stdout",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		if err := orchestrator.ValidateQuery(question); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initService(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, cancel := context.WithTimeout(ctx, cfg.Server.RequestTimeout())
		defer cancel()

		sess, err := env.Registry.Create(uuid.New().String())
		if err != nil {
			return err
		}
		defer env.Registry.Remove(sess.ID())

		go env.Orchestrator.Run(ctx, sess, question)

		var citations []model.Citation
		var end *model.EndPayload
		for ev := range sess.Events() {
			switch ev.Type {
			case model.EventContent:
				fmt.Print(ev.Content.Text)
			case model.EventCitation:
				citations = append(citations, *ev.Citation)
			case model.EventToolCall:
				if askShowEvents && ev.ToolCall != nil {
					fmt.Fprintf(os.Stderr, "[%s %s iteration=%d results=%d]\n",
						ev.ToolCall.Record.Name, ev.ToolCall.Record.Status,
						ev.ToolCall.Iteration, ev.ToolCall.ResultCount)
				}
			case model.EventError:
				fmt.Fprintf(os.Stderr, "error: %s (%s)\n", ev.Error.Message, ev.Error.Code)
			case model.EventEnd:
				end = ev.End
			}
		}
		fmt.Println()

		if len(citations) > 0 {
			fmt.Println("\nSources:")
			for _, c := range citations {
				fmt.Println(sourceLine(c))
			}
		}
		if end != nil {
			fmt.Fprintf(os.Stderr, "\n%s in %s, %d tokens, $%.4f\n",
				end.Status, end.Duration.Round(time.Millisecond), end.TotalTokens, end.CostUSD)
			if end.Status == model.EndError {
				return fmt.Errorf("question failed")
			}
		}
		return nil
	},
}

// sourceLine renders one citation for terminal output. ASCII only, so
// the line survives pipes and terminals with narrow charsets.
func sourceLine(c model.Citation) string {
	return fmt.Sprintf("  [%d] %s - %s (score %.2f)",
		c.Rank, c.Label, c.Title, c.Indicators.Composite)
}

func init() {
	askCmd.Flags().BoolVar(&askShowEvents, "events", false, "print tool call events to stderr")
	rootCmd.AddCommand(askCmd)
}
