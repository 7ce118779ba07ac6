package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/taskd/internal/access"
	"github.com/fyrsmithlabs/taskd/internal/task"
)

var (
	addDue      string
	addStatus   string
	addProject  string
	addWaiting  string
	addAssigned string
	addEstimate string
	addTags     []string
	addNote     string
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Long: `Create a task. The due date accepts natural language:

  tsk add "Pay rent" --due tomorrow
  tsk add "Quarterly review" --due "next friday" --status next
  tsk add "Renew passport" --due 2025-09-01 --tags admin,errand`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addDue, "due", "", "due date (natural language or YYYY-MM-DD)")
	addCmd.Flags().StringVar(&addStatus, "status", "", "initial status (default from config)")
	addCmd.Flags().StringVar(&addProject, "project", "", "project reference")
	addCmd.Flags().StringVar(&addWaiting, "waiting-on", "", "who or what this task waits on")
	addCmd.Flags().StringVar(&addAssigned, "assigned-to", "", "assignee reference")
	addCmd.Flags().StringVar(&addEstimate, "estimate", "", `time estimate, e.g. "2h"`)
	addCmd.Flags().StringSliceVar(&addTags, "tags", nil, "comma-separated tags")
	addCmd.Flags().StringVar(&addNote, "note", "", "markdown body")
}

func runAdd(cmd *cobra.Command, args []string) error {
	layer, cleanup, err := newLayer()
	if err != nil {
		return err
	}
	defer cleanup()

	var status task.Status
	if addStatus != "" {
		if status, err = task.ParseStatus(addStatus); err != nil {
			return err
		}
	}

	created, err := layer.Create(cmd.Context(), access.CreateRequest{
		Title:        strings.Join(args, " "),
		Status:       status,
		DueText:      addDue,
		Project:      addProject,
		WaitingOn:    addWaiting,
		AssignedTo:   addAssigned,
		TimeEstimate: addEstimate,
		Tags:         addTags,
		Content:      addNote,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created %s  %s  [%s]%s\n", created.ID, created.Title, created.Status, dueSuffix(created))
	return nil
}
