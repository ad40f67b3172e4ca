package main

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civicsignal/legisearch/internal/model"
	"github.com/civicsignal/legisearch/internal/store"
)

var (
	sessionsReason string
	sessionsLimit  int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List past search sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.ListSessions(cmd.Context(), store.SessionFilter{
			Reason: model.CompletionReason(sessionsReason),
			Limit:  sessionsLimit,
		})
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("no sessions")
			return nil
		}
		for _, rec := range records {
			s := rec.Session
			fmt.Printf("%s  %-19s  %-18s  iters=%-2d  cites=%-2d  %s\n",
				s.ID,
				s.StartedAt.Format("2006-01-02 15:04:05"),
				s.Reason,
				len(s.Iterations),
				len(rec.Citations),
				truncate(s.Query, 60),
			)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show one session with its iterations and citations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.GetSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		s := rec.Session
		fmt.Printf("Session %s\n", s.ID)
		fmt.Printf("Query:   %s\n", s.Query)
		fmt.Printf("Started: %s\n", s.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Ended:   %s (%s)\n", s.EndedAt.Format("2006-01-02 15:04:05"), s.Reason)

		fmt.Println("\nIterations:")
		for _, it := range s.Iterations {
			fmt.Printf("  %2d. %-18s results=%-3d new=%-3d cumulative=%-3d %s\n",
				it.Index, it.Strategy, it.ResultCount, it.NewCount, it.Cumulative,
				truncate(it.Query, 50))
		}

		if len(rec.Citations) > 0 {
			fmt.Println("\nCitations:")
			for _, c := range rec.Citations {
				fmt.Println(citationLine(c))
			}
		}
		return nil
	},
}

// openHistory opens the configured SQLite history store for read-only
// commands.
func openHistory(ctx context.Context) (store.Store, error) {
	if !cfg.History.Enabled {
		return nil, eris.New("session history is disabled in config")
	}
	st, err := store.NewSQLite(cfg.History.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate history store")
	}
	return st, nil
}

// citationLine renders one citation for terminal output. ASCII only, so
// the line survives pipes and terminals with narrow charsets.
func citationLine(c model.Citation) string {
	return fmt.Sprintf("  [%d] %s - %s (composite %.2f, iteration %d)",
		c.Rank, c.Label, c.Title, c.Indicators.Composite, c.Iteration)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsReason, "reason", "", "filter by completion reason")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 50, "max sessions to list")
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}
