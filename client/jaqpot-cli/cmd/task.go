package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect tasks",
}

var taskList struct {
	status string
	start  int
	limit  int
}

var taskGetCmd = &cobra.Command{
	Use:   "get [task-id]",
	Short: "Show a single task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newClient().getTask(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTasks(cmd.OutOrStdout(), []task{*t})
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newClient().listTasks(cmd.Context(), taskList.status, taskList.start, taskList.limit)
		if err != nil {
			return err
		}
		printTasks(cmd.OutOrStdout(), p.Items)
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d tasks\n", len(p.Items), p.Total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskGetCmd, taskListCmd)

	taskListCmd.Flags().StringVar(&taskList.status, "status", "", "filter by status (QUEUED, RUNNING, COMPLETED, ERROR, CANCELLED)")
	taskListCmd.Flags().IntVar(&taskList.start, "start", 0, "offset of the first task")
	taskListCmd.Flags().IntVar(&taskList.limit, "max", 10, "page size")
}

func printTasks(w io.Writer, tasks []task) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tDURATION\tRESULT")
	for _, t := range tasks {
		progress, duration := "-", "-"
		if t.PercentageCompleted != nil {
			progress = fmt.Sprintf("%.0f%%", *t.PercentageCompleted)
		}
		if t.Duration != nil {
			duration = fmt.Sprintf("%dms", *t.Duration)
		}
		result := t.Result
		if t.ErrorReport != "" {
			result = "error report " + t.ErrorReport
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, progress, duration, result)
	}
	tw.Flush()
}
