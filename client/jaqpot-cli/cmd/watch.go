package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// taskEvent mirrors the events pushed on /ws/subscribe.
type taskEvent struct {
	TaskID              string   `json:"taskId"`
	Status              string   `json:"status"`
	PercentageCompleted *float64 `json:"percentageCompleted,omitempty"`
	Message             string   `json:"message,omitempty"`
}

func (e taskEvent) terminal() bool {
	switch e.Status {
	case "COMPLETED", "ERROR", "CANCELLED":
		return true
	}
	return false
}

var watchCmd = &cobra.Command{
	Use:   "watch [task-id]",
	Short: "Watch real-time progress of your tasks",
	Long: `Streams task events for the authenticated user. With a task id only that
task is shown and the command exits once it reaches a terminal state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID := ""
		if len(args) == 1 {
			taskID = args[0]
		}
		conn, err := newClient().subscribe(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		fmt.Fprintln(cmd.OutOrStdout(), "WebSocket connected. Waiting for task events...")
		return watch(conn, taskID, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// messageReader is the read side of *websocket.Conn.
type messageReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// watch prints events until the connection closes or, when taskID is set,
// that task terminates.
func watch(conn messageReader, taskID string, out io.Writer) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var ev taskEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			fmt.Fprintf(out, "unrecognised message: %s\n", message)
			continue
		}
		if taskID != "" && ev.TaskID != taskID {
			continue
		}

		progress := "-"
		if ev.PercentageCompleted != nil {
			progress = fmt.Sprintf("%.0f%%", *ev.PercentageCompleted)
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", ev.TaskID, ev.Status, progress, ev.Message)

		if taskID != "" && ev.terminal() {
			return nil
		}
	}
}
