package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/joescharf/board/internal/models"
	"github.com/joescharf/board/internal/output"
	"github.com/joescharf/board/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status [board]",
	Short: "Show board status dashboard",
	Long: `Show a cross-board status overview or detailed status for one board.

Without arguments, shows a summary table of all boards.
With a board id or key, shows item counts per status and the active sprint.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return statusBoardRun(cmd.Context(), args[0])
		}
		return statusOverviewRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusCounts tallies work items by status. Custom statuses are keyed by name.
type statusCounts struct {
	total    int
	points   int
	byStatus map[models.Status]int
}

func countStatuses(items []*models.WorkItem) statusCounts {
	c := statusCounts{byStatus: make(map[models.Status]int)}
	for _, w := range items {
		c.total++
		c.points += w.Points()
		c.byStatus[w.Status]++
	}
	return c
}

// formatItemCounts renders open/in-progress/done counts, or "-" for none.
func formatItemCounts(c statusCounts) string {
	if c.total == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d/%d",
		c.byStatus[models.StatusOpen], c.byStatus[models.StatusInProgress], c.byStatus[models.StatusDone])
}

func activeSprint(ctx context.Context, s store.Store, boardID string) *models.Sprint {
	sprints, err := s.ListSprints(ctx, store.SprintFilter{BoardID: boardID, State: models.SprintStateActive, Limit: 1})
	if err != nil || len(sprints) == 0 {
		return nil
	}
	return sprints[0]
}

func statusOverviewRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx = ctxOrBackground(ctx)

	boards, err := s.ListBoards(ctx)
	if err != nil {
		return err
	}
	if len(boards) == 0 {
		ui.Info("No boards yet. Use 'board boards add <name>' to get started.")
		return nil
	}

	table := ui.Table([]string{"Board", "Items (open/wip/done)", "Points", "Active Sprint", "Updated"})
	for _, b := range boards {
		items, _ := s.ListWorkItems(ctx, store.WorkItemFilter{BoardID: b.ID})
		c := countStatuses(items)

		sprint := "-"
		if sp := activeSprint(ctx, s, b.ID); sp != nil {
			sprint = sp.Name
		}

		table.Append([]string{
			output.Cyan(b.Key),
			formatItemCounts(c),
			fmt.Sprintf("%d", c.points),
			sprint,
			timeAgo(b.UpdatedAt),
		})
	}
	table.Render()
	return nil
}

func statusBoardRun(ctx context.Context, ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx = ctxOrBackground(ctx)

	b, err := resolveBoard(ctx, s, ref)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(b.Key), b.Name)
	fmt.Fprintf(ui.Out, "  ID:         %s\n", b.ID)

	items, err := s.ListWorkItems(ctx, store.WorkItemFilter{BoardID: b.ID})
	if err != nil {
		return err
	}
	c := countStatuses(items)
	fmt.Fprintf(ui.Out, "  Items:      %d (%d points)\n", c.total, c.points)

	statuses := make([]models.Status, 0, len(c.byStatus))
	for st := range c.byStatus {
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool {
		ki, kj := statuses[i].Kind(), statuses[j].Kind()
		if ki != kj {
			return ki > kj
		}
		return statuses[i] < statuses[j]
	})
	for _, st := range statuses {
		fmt.Fprintf(ui.Out, "    %-16s %d\n", output.StatusColor(st), c.byStatus[st])
	}

	if epics, err := s.ListEpics(ctx, b.ID); err == nil {
		fmt.Fprintf(ui.Out, "  Epics:      %d\n", len(epics))
	}

	sp := activeSprint(ctx, s, b.ID)
	if sp == nil {
		fmt.Fprintf(ui.Out, "  Sprint:     %s\n", output.Yellow("none active"))
		return nil
	}
	fmt.Fprintf(ui.Out, "  Sprint:     %s %s (%s to %s)\n", sp.Name, output.SprintStateColor(sp.State),
		sp.StartDate.Format(models.DateLayout), sp.EndDate.Format(models.DateLayout))

	inSprint, err := s.ListWorkItems(ctx, store.WorkItemFilter{BoardID: b.ID, SprintID: sp.ID})
	if err == nil {
		sc := countStatuses(inSprint)
		fmt.Fprintf(ui.Out, "  Scope:      %d items, %d points, %d done\n",
			sc.total, sc.points, sc.byStatus[models.StatusDone])
	}
	return nil
}
