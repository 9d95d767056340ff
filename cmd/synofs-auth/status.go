package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/synofs/auth/sessions"
	"github.com/spf13/cobra"
)

func newStatusCmd(c *cli) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			out := cmd.OutOrStdout()
			if all {
				records, err := a.store.List()
				if err != nil {
					return err
				}
				return printRecords(out, records)
			}

			endpoint, user, err := a.target(&c.flags)
			if err != nil {
				return err
			}
			m, err := a.manager(endpoint, user, false)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s: %s\n", endpoint, user, m.State())
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "list every stored session")
	return cmd
}

func printRecords(out io.Writer, records []*sessions.SessionRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No stored sessions")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENDPOINT\tUSER\tACTIVE\tPAIRED\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%s\n", r.Endpoint, r.User, r.Active(), r.Paired(), r.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
