package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/board/internal/models"
	"github.com/joescharf/board/internal/output"
	"github.com/joescharf/board/internal/store"
)

var (
	boardKey  string
	userEmail string
)

var boardCmd = &cobra.Command{
	Use:     "boards",
	Aliases: []string{"board"},
	Short:   "Manage boards",
	Long:    "Create, list and inspect boards.",
}

var boardAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a board",
	Long:  "Create a board. The key defaults to the upper-cased first word of the name.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return boardAddRun(cmd.Context(), args[0])
	},
}

var boardListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List boards",
	RunE: func(cmd *cobra.Command, args []string) error {
		return boardListRun(cmd.Context())
	},
}

var userCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <display-name>",
	Short: "Create a user that can be assigned to work items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userAddRun(cmd.Context(), args[0])
	},
}

func init() {
	boardAddCmd.Flags().StringVar(&boardKey, "key", "", "Short board key (default: derived from name)")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address")

	boardCmd.AddCommand(boardAddCmd)
	boardCmd.AddCommand(boardListCmd)
	rootCmd.AddCommand(boardCmd)

	userCmd.AddCommand(userAddCmd)
	rootCmd.AddCommand(userCmd)
}

// keyFromName derives a board key like "CORE" from "Core platform".
func keyFromName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func boardAddRun(ctx context.Context, name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	key := boardKey
	if key == "" {
		key = keyFromName(name)
	}

	b := &models.Board{Name: name, Key: key}
	if err := s.CreateBoard(ctxOrBackground(ctx), b); err != nil {
		return fmt.Errorf("add board: %w", err)
	}

	ui.Success("Added board: %s (%s)", output.Cyan(b.Name), b.Key)
	ui.VerboseLog("ID: %s", b.ID)
	return nil
}

func boardListRun(ctx context.Context) error {
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

	table := ui.Table([]string{"Key", "Name", "Open Items", "Created", "ID"})
	for _, b := range boards {
		items, _ := s.ListWorkItems(ctx, store.WorkItemFilter{BoardID: b.ID})
		open := 0
		for _, w := range items {
			if !w.Status.IsDone() {
				open++
			}
		}
		table.Append([]string{
			output.Cyan(b.Key),
			b.Name,
			fmt.Sprintf("%d", open),
			timeAgo(b.CreatedAt),
			b.ID,
		})
	}
	table.Render()
	return nil
}

func userAddRun(ctx context.Context, displayName string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	u := &models.User{DisplayName: displayName, Email: userEmail}
	if err := s.CreateUser(ctxOrBackground(ctx), u); err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	ui.Success("Added user: %s (%s)", output.Cyan(u.DisplayName), u.ID)
	return nil
}

// resolveBoard looks a board up by id first, then by key (case-insensitive).
func resolveBoard(ctx context.Context, s store.Store, ref string) (*models.Board, error) {
	b, err := s.GetBoard(ctx, ref)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	boards, err := s.ListBoards(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range boards {
		if strings.EqualFold(b.Key, ref) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("board not found: %s", ref)
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// timeAgo returns a human-readable duration from a time.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
