package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/celestiaorg/testbed/internal/db/models"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		action string
		status string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the recorded lifecycle operations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			listOpts := &models.ListOptions{Limit: limit}
			if action != "" {
				a, err := models.ParseAction(action)
				if err != nil {
					return err
				}
				listOpts.Action = a
			}
			if status != "" {
				s, err := models.ParseOperationStatus(status)
				if err != nil {
					return err
				}
				listOpts.Status = s
			}

			return withBackend(cmd, opts, func(b Backend) error {
				ops, err := b.History(cmd.Context(), listOpts)
				if err != nil {
					return err
				}

				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.SetHeader([]string{"Started", "Action", "Quantity", "Status", "Duration", "Instances", "Error"})
				table.SetAutoWrapText(false)
				for _, op := range ops {
					table.Append([]string{
						op.StartedAt.Local().Format(time.DateTime),
						op.Action.String(),
						strconv.Itoa(op.Quantity),
						op.Status.String(),
						op.Duration().Round(time.Second).String(),
						strconv.Itoa(op.Instances),
						op.Error,
					})
				}
				table.Render()
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", models.DefaultLimit, "Maximum number of operations to list")
	cmd.Flags().StringVar(&action, "action", "", fmt.Sprintf("Only list one action (%s, %s, %s, %s, %s)",
		models.ActionDeploy, models.ActionDestroy, models.ActionStart, models.ActionStop, models.ActionRefresh))
	cmd.Flags().StringVar(&status, "status", "", "Only list one status (running, completed, failed)")
	return cmd
}
