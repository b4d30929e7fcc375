package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/celestiaorg/testbed/internal/testbed"
	"github.com/celestiaorg/testbed/internal/types"
)

// rowsPerGroup is the number of instances between two blank separator rows
const rowsPerGroup = 5

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the fleet per region with ready-to-paste SSH commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, opts, func(b Backend) error {
				status, err := b.Status(cmd.Context())
				if err != nil {
					return err
				}
				renderStatus(cmd.OutOrStdout(), status, !opts.noColor)
				return nil
			})
		},
	}
}

// renderStatus prints the status header and one table section per region.
// Active instances are green, booting ones yellow and the others red when color is set.
func renderStatus(w io.Writer, status testbed.Status, color bool) {
	fmt.Fprintf(w, "Client: %s\n", status.Provider)
	repo := status.Repository
	if repo.URL != "" {
		fmt.Fprintf(w, "Repo: %s (%s)\n", repo.URL, repo.Branch)
	}
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{fmt.Sprintf("Instances (%d)", status.Total), "", ""})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	blank := []string{"", "", ""}
	for i, region := range status.Regions {
		table.Append([]string{strings.ToUpper(region.Region), "", ""})
		for j, row := range region.Rows {
			cells := []string{strconv.Itoa(row.Index), row.SSHCommand, row.PowerStatus.String()}
			if color {
				c := tablewriter.Colors{tablewriter.FgRedColor}
				switch row.PowerStatus {
				case types.PowerStatusActive:
					c = tablewriter.Colors{tablewriter.FgGreenColor}
				case types.PowerStatusBooting:
					c = tablewriter.Colors{tablewriter.FgYellowColor}
				}
				table.Rich(cells, []tablewriter.Colors{c, c, c})
			} else {
				table.Append(cells)
			}
			if (j+1)%rowsPerGroup == 0 && j+1 < len(region.Rows) {
				table.Append(blank)
			}
		}
		if i+1 < len(status.Regions) {
			table.Append(blank)
		}
	}
	table.Render()
}
