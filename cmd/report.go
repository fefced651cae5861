package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/board/internal/models"
	"github.com/joescharf/board/internal/output"
	"github.com/joescharf/board/internal/reports"
	"github.com/joescharf/board/internal/store"
)

var (
	reportFormat   string
	reportWindow   int
	exportType     string
	exportFormat   string
	exportBoardRef string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate reports",
	Long:  "Burndown, velocity, epic progress and workload reports for a board.",
}

var reportBurndownCmd = &cobra.Command{
	Use:   "burndown <sprint-id>",
	Short: "Ideal and actual remaining points per sprint day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportBurndownRun(cmd.Context(), args[0])
	},
}

var reportVelocityCmd = &cobra.Command{
	Use:   "velocity <board>",
	Short: "Completed points of recent closed sprints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportVelocityRun(cmd.Context(), args[0])
	},
}

var reportEpicsCmd = &cobra.Command{
	Use:   "epics <board>",
	Short: "Point-weighted progress of every epic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportEpicsRun(cmd.Context(), args[0])
	},
}

var reportWorkloadCmd = &cobra.Command{
	Use:   "workload <board>",
	Short: "Open and in-progress items per assignee",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportWorkloadRun(cmd.Context(), args[0])
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export data as JSON, CSV, or Markdown",
	Long:  "Export the work items, sprints or epics of a board in various formats.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun(cmd.Context())
	},
}

func init() {
	reportCmd.PersistentFlags().StringVar(&reportFormat, "format", "table", "Output format: table, json")
	reportVelocityCmd.Flags().IntVar(&reportWindow, "window", 0, "Closed sprints to average (default: reports.velocity_window)")

	reportCmd.AddCommand(reportBurndownCmd)
	reportCmd.AddCommand(reportVelocityCmd)
	reportCmd.AddCommand(reportEpicsCmd)
	reportCmd.AddCommand(reportWorkloadCmd)
	rootCmd.AddCommand(reportCmd)

	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportType, "type", "items", "Data type: items, sprints, epics")
	exportCmd.Flags().StringVar(&exportBoardRef, "board", "", "Board id or key (required)")
	_ = exportCmd.MarkFlagRequired("board")
	rootCmd.AddCommand(exportCmd)
}

func reportEngine() (store.Store, *reports.Engine, error) {
	s, err := getStore()
	if err != nil {
		return nil, nil, err
	}
	return s, reports.NewEngine(s, viper.GetInt("reports.velocity_window")), nil
}

func writeIndentedJSON(v any) error {
	enc := json.NewEncoder(ui.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func reportBurndownRun(ctx context.Context, sprintID string) error {
	_, eng, err := reportEngine()
	if err != nil {
		return err
	}
	bd, err := eng.Burndown(ctxOrBackground(ctx), sprintID)
	if err != nil {
		return err
	}
	if reportFormat == "json" {
		return writeIndentedJSON(bd)
	}

	ui.Info("Sprint %s: %d points in scope", output.Cyan(sprintID), bd.Total)
	if len(bd.Days) == 0 {
		ui.Warning("Sprint has no days (end date before start date)")
		return nil
	}
	table := ui.Table([]string{"Day", "Ideal", "Actual"})
	for i, day := range bd.Days {
		actual := strconv.Itoa(bd.Actual[i])
		if bd.Actual[i] > bd.Ideal[i] {
			actual = output.Red(actual)
		} else {
			actual = output.Green(actual)
		}
		table.Append([]string{day, strconv.Itoa(bd.Ideal[i]), actual})
	}
	table.Render()
	return nil
}

func reportVelocityRun(ctx context.Context, boardRef string) error {
	s, eng, err := reportEngine()
	if err != nil {
		return err
	}
	ctx = ctxOrBackground(ctx)
	b, err := resolveBoard(ctx, s, boardRef)
	if err != nil {
		return err
	}
	v, err := eng.Velocity(ctx, b.ID, reportWindow)
	if err != nil {
		return err
	}
	if reportFormat == "json" {
		return writeIndentedJSON(v)
	}

	if len(v.Sprints) == 0 {
		ui.Info("No closed sprints on %s yet.", output.Cyan(b.Key))
		return nil
	}
	table := ui.Table([]string{"Sprint", "Ended", "Completed Points"})
	for _, sv := range v.Sprints {
		table.Append([]string{sv.Name, sv.EndDate, strconv.Itoa(sv.CompletedPoints)})
	}
	table.Render()
	ui.Info("Average velocity: %s", output.Cyan(fmt.Sprintf("%.1f", v.Average)))
	return nil
}

func reportEpicsRun(ctx context.Context, boardRef string) error {
	s, eng, err := reportEngine()
	if err != nil {
		return err
	}
	ctx = ctxOrBackground(ctx)
	b, err := resolveBoard(ctx, s, boardRef)
	if err != nil {
		return err
	}
	progress, err := eng.EpicProgress(ctx, b.ID)
	if err != nil {
		return err
	}
	if reportFormat == "json" {
		return writeIndentedJSON(progress)
	}

	if len(progress) == 0 {
		ui.Info("No epics on %s.", output.Cyan(b.Key))
		return nil
	}
	table := ui.Table([]string{"Epic", "Status", "Items", "Points", "Done"})
	for _, p := range progress {
		table.Append([]string{
			p.Title,
			string(p.Status),
			fmt.Sprintf("%d/%d", p.DoneItems, p.TotalItems),
			fmt.Sprintf("%d/%d", p.DonePoints, p.TotalPoints),
			output.PercentColor(p.PercentDoneWeighted),
		})
	}
	table.Render()
	return nil
}

func reportWorkloadRun(ctx context.Context, boardRef string) error {
	s, eng, err := reportEngine()
	if err != nil {
		return err
	}
	ctx = ctxOrBackground(ctx)
	b, err := resolveBoard(ctx, s, boardRef)
	if err != nil {
		return err
	}
	rows, err := eng.Workload(ctx, b.ID)
	if err != nil {
		return err
	}
	if reportFormat == "json" {
		return writeIndentedJSON(rows)
	}

	if len(rows) == 0 {
		ui.Info("Nobody is assigned to work on %s.", output.Cyan(b.Key))
		return nil
	}
	table := ui.Table([]string{"User", "Open", "In Progress", "Points"})
	for _, w := range rows {
		table.Append([]string{
			w.DisplayName,
			strconv.Itoa(w.Open),
			strconv.Itoa(w.InProgress),
			strconv.Itoa(w.EstimationSum),
		})
	}
	table.Render()
	return nil
}

func exportRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx = ctxOrBackground(ctx)
	b, err := resolveBoard(ctx, s, exportBoardRef)
	if err != nil {
		return err
	}

	switch exportType {
	case "items":
		return exportItems(ctx, s, b)
	case "sprints":
		return exportSprints(ctx, s, b)
	case "epics":
		return exportEpics(ctx, s, b)
	default:
		return fmt.Errorf("unknown export type: %s (use: items, sprints, epics)", exportType)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func pointsCell(w *models.WorkItem) string {
	if w.EstimationPoints == nil {
		return ""
	}
	return strconv.Itoa(*w.EstimationPoints)
}

func exportItems(ctx context.Context, s store.Store, b *models.Board) error {
	items, err := s.ListWorkItems(ctx, store.WorkItemFilter{BoardID: b.ID})
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		return writeIndentedJSON(items)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "Title", "Type", "Status", "Priority", "Points", "EpicID", "SprintID", "DoneInSprintID", "Updated"})
		for _, i := range items {
			_ = w.Write([]string{i.ID, i.Title, i.Type, string(i.Status), i.Priority, pointsCell(i),
				deref(i.EpicID), deref(i.SprintID), deref(i.DoneInSprintID), i.UpdatedAt.Format("2006-01-02")})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintf(ui.Out, "# %s work items\n\n", b.Name)
		fmt.Fprintln(ui.Out, "| Title | Type | Status | Points |")
		fmt.Fprintln(ui.Out, "|-------|------|--------|--------|")
		for _, i := range items {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s |\n", i.Title, i.Type, i.Status, pointsCell(i))
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}

func exportSprints(ctx context.Context, s store.Store, b *models.Board) error {
	sprints, err := s.ListSprints(ctx, store.SprintFilter{BoardID: b.ID})
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		return writeIndentedJSON(sprints)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "Name", "State", "Start", "End", "Goal"})
		for _, sp := range sprints {
			_ = w.Write([]string{sp.ID, sp.Name, string(sp.State),
				sp.StartDate.Format(models.DateLayout), sp.EndDate.Format(models.DateLayout), sp.Goal})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintf(ui.Out, "# %s sprints\n\n", b.Name)
		fmt.Fprintln(ui.Out, "| Name | State | Start | End |")
		fmt.Fprintln(ui.Out, "|------|-------|-------|-----|")
		for _, sp := range sprints {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s |\n", sp.Name, sp.State,
				sp.StartDate.Format(models.DateLayout), sp.EndDate.Format(models.DateLayout))
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}

func exportEpics(ctx context.Context, s store.Store, b *models.Board) error {
	epics, err := s.ListEpics(ctx, b.ID)
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		return writeIndentedJSON(epics)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "Title", "Status", "Impact", "Confidence", "Ease", "ICE"})
		for _, e := range epics {
			_ = w.Write([]string{e.ID, e.Title, string(e.Status), strconv.Itoa(e.Impact),
				strconv.Itoa(e.Confidence), strconv.Itoa(e.Ease), strconv.Itoa(e.ICEScore())})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintf(ui.Out, "# %s epics\n\n", b.Name)
		fmt.Fprintln(ui.Out, "| Title | Status | ICE |")
		fmt.Fprintln(ui.Out, "|-------|--------|-----|")
		for _, e := range epics {
			fmt.Fprintf(ui.Out, "| %s | %s | %d |\n", e.Title, e.Status, e.ICEScore())
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}
