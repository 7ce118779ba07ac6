package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/taskd/internal/task"
)

// transitionCmds builds the lifecycle verbs. Each resolves its argument the
// same way show does, so "tsk done pay rent" works as well as "tsk done 7XQ2".
func transitionCmds() []*cobra.Command {
	type verb struct {
		use, short, done string
	}

	verbs := []verb{
		{"done", "Complete a task", "Completed"},
		{"start", "Move a task to the next list", "Started"},
		{"wait", "Park a task as waiting", "Now waiting"},
		{"defer", "Shelve a task to someday", "Deferred"},
		{"schedule", "Mark a task as scheduled", "Scheduled"},
	}
	targets := map[string]task.Status{
		"done":     task.StatusCompleted,
		"start":    task.StatusNext,
		"wait":     task.StatusWaiting,
		"defer":    task.StatusSomeday,
		"schedule": task.StatusScheduled,
	}

	cmds := make([]*cobra.Command, 0, len(verbs))
	for _, v := range verbs {
		v := v
		cmds = append(cmds, &cobra.Command{
			Use:   v.use + " <id|title>",
			Short: v.short,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				layer, cleanup, err := newLayer()
				if err != nil {
					return err
				}
				defer cleanup()

				t, err := layer.Resolve(cmd.Context(), joinArgs(args))
				if err != nil {
					return err
				}
				updated, err := layer.UpdateStatus(cmd.Context(), t.ID, targets[v.use])
				if err != nil {
					return err
				}
				fmt.Printf("%s %s  %s\n", v.done, updated.ID, updated.Title)
				return nil
			},
		})
	}
	return cmds
}

var rmCmd = &cobra.Command{
	Use:   "rm <id|title>",
	Short: "Delete a task permanently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		layer, cleanup, err := newLayer()
		if err != nil {
			return err
		}
		defer cleanup()

		t, err := layer.Resolve(cmd.Context(), joinArgs(args))
		if err != nil {
			return err
		}
		if err := layer.Delete(cmd.Context(), t.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted %s  %s\n", t.ID, t.Title)
		return nil
	},
}

// joinArgs lets multi-word titles work without quoting.
func joinArgs(args []string) string {
	return strings.Join(args, " ")
}
