package main

import (
	"github.com/jrsteele09/synofs/internal/config"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	endpoint        string
	user            string
	configDir       string
	verbose         bool
	metricsTextfile string
}

// cli is shared by every subcommand. app is set in the persistent pre-run.
type cli struct {
	flags rootFlags
	app   *app
}

// close runs after the command regardless of its outcome so failed logins
// still reach the metrics textfile.
func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	return c.app.close(c.flags.metricsTextfile)
}

func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "synofs-auth",
		Short:         "Manage the FileStation session of a Synology NAS",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.HasParent() || cmd.Name() == "version" {
				return nil
			}
			var err error
			c.app, err = newApp(&c.flags)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			displayAppname(config.EnvVars{}.GetAppName())
			return cmd.Help()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&c.flags.endpoint, "endpoint", "e", "", "NAS base URL, e.g. https://nas.local:5001")
	pf.StringVarP(&c.flags.user, "user", "u", "", "account name")
	pf.StringVar(&c.flags.configDir, "config-dir", "", "override the config directory")
	pf.BoolVarP(&c.flags.verbose, "verbose", "v", false, "debug logging on stderr")
	pf.StringVar(&c.flags.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")

	cmd.AddCommand(
		newLoginCmd(c),
		newLogoutCmd(c),
		newStatusCmd(c),
		newProfileCmd(c),
		newVersionCmd(),
	)
	return cmd
}
