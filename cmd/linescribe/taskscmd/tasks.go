package taskscmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lyrebirdhq/linescribe/conversation"
	"github.com/lyrebirdhq/linescribe/db"
	"github.com/lyrebirdhq/linescribe/db/models"
	"github.com/lyrebirdhq/linescribe/internal/configutil"
	"github.com/spf13/cobra"
)

// New returns the tasks command, an operator view of stored tasks.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List stored tasks for an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			lineID := strings.TrimSpace(configutil.FlagOrViperString(cmd, "line-id", "tasks.line_id"))
			status := strings.TrimSpace(configutil.FlagOrViperString(cmd, "status", "tasks.status"))
			limit := configutil.FlagOrViperInt(cmd, "limit", "tasks.limit")
			dsn := strings.TrimSpace(configutil.FlagOrViperString(cmd, "db-dsn", "db.dsn"))
			return run(cmd, lineID, status, dsn, limit)
		},
	}

	cmd.Flags().String("line-id", "", "Platform identifier of the identity (e.g. U1234...).")
	cmd.Flags().String("status", "", "Filter by status (pending|completed). Empty lists all.")
	cmd.Flags().Int("limit", 20, "Maximum number of tasks to print.")
	cmd.Flags().String("db-dsn", "", "SQLite DSN (defaults to ~/.linescribe/linescribe.sqlite).")

	return cmd
}

func run(cmd *cobra.Command, lineID, status, dsn string, limit int) error {
	if lineID == "" {
		return fmt.Errorf("--line-id is required")
	}
	switch status {
	case "", models.TaskStatusPending, models.TaskStatusCompleted:
	default:
		return fmt.Errorf("invalid status %q", status)
	}

	ctx := cmd.Context()

	dbCfg := db.DefaultConfig()
	dbCfg.DSN = dsn
	gdb, err := db.Open(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	store, err := conversation.NewStore(gdb)
	if err != nil {
		return err
	}

	identity, err := store.FindIdentityByLineID(ctx, lineID)
	if err != nil {
		if errors.Is(err, conversation.ErrIdentityNotFound) {
			return fmt.Errorf("no identity for line id %q", lineID)
		}
		return err
	}

	total, err := store.CountTasks(ctx, identity.ID, "")
	if err != nil {
		return err
	}
	completed, err := store.CountTasks(ctx, identity.ID, models.TaskStatusCompleted)
	if err != nil {
		return err
	}

	list, err := store.ListTasks(ctx, identity.ID, status, conversation.TaskOrderNewest, limit)
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(identity.Timezone)
	if err != nil {
		loc = time.UTC
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", identity.DisplayName, identity.LineID)
	fmt.Fprintf(out, "tasks: %d total, %d completed, %d pending\n\n", total, completed, total-completed)
	if len(list) == 0 {
		fmt.Fprintln(out, "no tasks")
		return nil
	}
	for i, task := range list {
		line := fmt.Sprintf("%d. [%s] %s", i+1, task.Status, task.Title)
		if task.DueAt != nil {
			line += " (due " + task.DueAt.In(loc).Format("2006-01-02 15:04") + ")"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
