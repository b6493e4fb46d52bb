package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var notificationCmd = &cobra.Command{
	Use:     "notification",
	Aliases: []string{"notifications"},
	Short:   "Read your notifications",
}

var notificationList struct {
	all   bool
	start int
	limit int
}

var notificationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unread notifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := "UNREAD"
		if notificationList.all {
			query = "ALL"
		}
		p, err := newClient().listNotifications(cmd.Context(), query, notificationList.start, notificationList.limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tFROM\tVIEWED\tBODY")
		for _, n := range p.Items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", n.ID, n.Type, n.From, n.Viewed, n.Body)
		}
		tw.Flush()
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d notifications\n", len(p.Items), p.Total)
		return nil
	},
}

var notificationReadCmd = &cobra.Command{
	Use:   "read [notification-id]",
	Short: "Mark a notification as viewed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return markViewed(cmd, newClient(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(notificationCmd)
	notificationCmd.AddCommand(notificationListCmd, notificationReadCmd)

	notificationListCmd.Flags().BoolVar(&notificationList.all, "all", false, "include viewed notifications")
	notificationListCmd.Flags().IntVar(&notificationList.start, "start", 0, "offset of the first notification")
	notificationListCmd.Flags().IntVar(&notificationList.limit, "max", 10, "page size")
}

// markViewed looks the notification up among the unread ones and writes it
// back whole, since the update endpoint replaces the document.
func markViewed(cmd *cobra.Command, c *apiClient, id string) error {
	for start := 0; ; {
		p, err := c.listNotifications(cmd.Context(), "UNREAD", start, 100)
		if err != nil {
			return err
		}
		for _, n := range p.Items {
			if n.ID != id {
				continue
			}
			n.Viewed = true
			if _, err := c.updateNotification(cmd.Context(), n); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Notification %s marked as viewed\n", id)
			return nil
		}
		start += len(p.Items)
		if len(p.Items) == 0 || int64(start) >= p.Total {
			return fmt.Errorf("no unread notification %q", id)
		}
	}
}
