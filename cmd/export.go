package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/civicsignal/legisearch/internal/model"
	"github.com/civicsignal/legisearch/internal/store"
)

var (
	exportOut    string
	exportReason string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export session history to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.ListSessions(cmd.Context(), store.SessionFilter{
			Reason: model.CompletionReason(exportReason),
			Limit:  exportLimit,
		})
		if err != nil {
			return err
		}

		f := xlsx.NewFile()
		if err := writeSessionSheet(f, records); err != nil {
			return err
		}
		if err := writeCitationSheet(f, records); err != nil {
			return err
		}
		if err := f.Save(exportOut); err != nil {
			return eris.Wrap(err, "export: save workbook")
		}

		zap.L().Info("export complete",
			zap.String("path", exportOut),
			zap.Int("sessions", len(records)),
		)
		fmt.Printf("wrote %d sessions to %s\n", len(records), exportOut)
		return nil
	},
}

func writeSessionSheet(f *xlsx.File, records []store.SessionRecord) error {
	sheet, err := f.AddSheet("Sessions")
	if err != nil {
		return eris.Wrap(err, "export: add sessions sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Session ID", "Query", "Reason", "Iterations", "Citations", "Started", "Ended"} {
		header.AddCell().Value = h
	}

	for _, rec := range records {
		s := rec.Session
		row := sheet.AddRow()
		row.AddCell().Value = s.ID
		row.AddCell().Value = s.Query
		row.AddCell().Value = string(s.Reason)
		row.AddCell().SetInt(len(s.Iterations))
		row.AddCell().SetInt(len(rec.Citations))
		row.AddCell().Value = s.StartedAt.Format("2006-01-02 15:04:05")
		row.AddCell().Value = s.EndedAt.Format("2006-01-02 15:04:05")
	}
	return nil
}

func writeCitationSheet(f *xlsx.File, records []store.SessionRecord) error {
	sheet, err := f.AddSheet("Citations")
	if err != nil {
		return eris.Wrap(err, "export: add citations sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Session ID", "Rank", "Label", "Title", "Kind", "Composite", "Semantic", "Keyword", "Recency", "Authority", "Iteration", "Excerpt"} {
		header.AddCell().Value = h
	}

	for _, rec := range records {
		for _, c := range rec.Citations {
			row := sheet.AddRow()
			row.AddCell().Value = rec.Session.ID
			row.AddCell().SetInt(c.Rank)
			row.AddCell().Value = c.Label
			row.AddCell().Value = c.Title
			row.AddCell().Value = string(c.Kind)
			row.AddCell().SetFloat(c.Indicators.Composite)
			row.AddCell().SetFloat(c.Indicators.Semantic)
			row.AddCell().SetFloat(c.Indicators.Keyword)
			row.AddCell().SetFloat(c.Indicators.Recency)
			row.AddCell().SetFloat(c.Indicators.Authority)
			row.AddCell().SetInt(c.Iteration)
			row.AddCell().Value = c.Excerpt
		}
	}
	return nil
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "sessions.xlsx", "output file path")
	exportCmd.Flags().StringVar(&exportReason, "reason", "", "filter by completion reason")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 500, "max sessions to export")
	rootCmd.AddCommand(exportCmd)
}
