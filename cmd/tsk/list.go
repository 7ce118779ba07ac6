package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/taskd/internal/access"
	"github.com/fyrsmithlabs/taskd/internal/dates"
	"github.com/fyrsmithlabs/taskd/internal/task"
)

var listCmd = &cobra.Command{
	Use:   "list [filter]",
	Short: "List tasks",
	Long: `List tasks by filter. Filters:

  inbox    unprocessed tasks (default)
  next     the active list
  waiting  blocked on someone else
  someday  shelved
  today    due today, any open status
  overdue  past due, any open status
  all      everything, completed included`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	layer, cleanup, err := newLayer()
	if err != nil {
		return err
	}
	defer cleanup()

	filter := access.FilterInbox
	if len(args) == 1 {
		filter = access.Filter(strings.ToLower(args[0]))
	}

	tasks, err := layer.List(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tDUE\tTITLE")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Status, dueColumn(t), t.Title)
	}
	return w.Flush()
}

var showCmd = &cobra.Command{
	Use:   "show <id|title>",
	Short: "Show one task in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		layer, cleanup, err := newLayer()
		if err != nil {
			return err
		}
		defer cleanup()

		t, err := layer.Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTask(t)
		return nil
	},
}

var (
	editTitle    string
	editDue      string
	editProject  string
	editWaiting  string
	editAssigned string
	editEstimate string
	editTags     []string
)

var editCmd = &cobra.Command{
	Use:   "edit <id|title>",
	Short: "Update fields on a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runEdit,
}

func init() {
	editCmd.Flags().StringVar(&editTitle, "title", "", "new title")
	editCmd.Flags().StringVar(&editDue, "due", "", "new due date (natural language or YYYY-MM-DD)")
	editCmd.Flags().StringVar(&editProject, "project", "", "project reference")
	editCmd.Flags().StringVar(&editWaiting, "waiting-on", "", "who or what this task waits on")
	editCmd.Flags().StringVar(&editAssigned, "assigned-to", "", "assignee reference")
	editCmd.Flags().StringVar(&editEstimate, "estimate", "", "time estimate")
	editCmd.Flags().StringSliceVar(&editTags, "tags", nil, "replacement tag list")
}

func runEdit(cmd *cobra.Command, args []string) error {
	layer, cleanup, err := newLayer()
	if err != nil {
		return err
	}
	defer cleanup()

	t, err := layer.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	var patch task.Patch
	set := func(flag string, dst **string, val string) {
		if cmd.Flags().Changed(flag) {
			*dst = &val
		}
	}
	set("title", &patch.Title, editTitle)
	set("due", &patch.Due, editDue)
	set("project", &patch.Project, editProject)
	set("waiting-on", &patch.WaitingOn, editWaiting)
	set("assigned-to", &patch.AssignedTo, editAssigned)
	set("estimate", &patch.TimeEstimate, editEstimate)
	if cmd.Flags().Changed("tags") {
		patch.Tags = editTags
	}

	updated, err := layer.UpdateFields(cmd.Context(), t.ID, patch)
	if err != nil {
		return err
	}
	fmt.Printf("Updated %s  %s\n", updated.ID, updated.Title)
	return nil
}

// dueColumn renders the due date for table output, flagging overdue work.
func dueColumn(t *task.Task) string {
	if t.Due == "" {
		return "-"
	}
	due, err := time.ParseInLocation("2006-01-02", t.Due, time.Local)
	if err != nil {
		return t.Due
	}
	rel := dates.FormatRelative(due)
	if dates.IsOverdue(due) && t.Status != task.StatusCompleted {
		return rel + " !"
	}
	return rel
}

func dueSuffix(t *task.Task) string {
	if t.Due == "" {
		return ""
	}
	return "  due " + dueColumn(t)
}

func printTask(t *task.Task) {
	fmt.Printf("%s  %s\n", t.ID, t.Title)
	fmt.Printf("  status:    %s\n", t.Status)
	if t.Due != "" {
		fmt.Printf("  due:       %s (%s)\n", t.Due, dueColumn(t))
	}
	if t.Project != "" {
		fmt.Printf("  project:   %s\n", t.Project)
	}
	if t.AssignedTo != "" {
		fmt.Printf("  assigned:  %s\n", t.AssignedTo)
	}
	if t.WaitingOn != "" {
		fmt.Printf("  waiting:   %s\n", t.WaitingOn)
	}
	if len(t.BlockedBy) > 0 {
		fmt.Printf("  blocked by: %s\n", strings.Join(t.BlockedBy, ", "))
	}
	if len(t.Blocks) > 0 {
		fmt.Printf("  blocks:    %s\n", strings.Join(t.Blocks, ", "))
	}
	if len(t.Tags) > 0 {
		fmt.Printf("  tags:      %s\n", strings.Join(t.Tags, ", "))
	}
	if t.TimeEstimate != "" {
		fmt.Printf("  estimate:  %s\n", t.TimeEstimate)
	}
	fmt.Printf("  created:   %s\n", t.Created.Local().Format("2006-01-02 15:04"))
	if t.Completed != nil {
		fmt.Printf("  completed: %s\n", t.Completed.Local().Format("2006-01-02 15:04"))
	}
	if t.Content != "" {
		fmt.Printf("\n%s\n", t.Content)
	}
}
