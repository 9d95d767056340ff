package main

import (
	"fmt"

	"github.com/jrsteele09/synofs/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newProfileCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or save the default endpoint and user",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the saved defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := yaml.Marshal(c.app.profile)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	var pairDevice, forgetDevice bool
	save := &cobra.Command{
		Use:   "save",
		Short: "Save --endpoint, --user and the flags below as defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			p := *a.profile
			if c.flags.endpoint != "" {
				p.Endpoint = c.flags.endpoint
			}
			if c.flags.user != "" {
				p.Username = c.flags.user
			}
			if cmd.Flags().Changed("pair-device") {
				p.PairDevice = pairDevice
			}
			if cmd.Flags().Changed("forget-device") {
				p.ForgetOnLogout = forgetDevice
			}
			if err := config.SaveProfile(a.dir, &p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", config.ProfileFileName)
			return nil
		},
	}
	save.Flags().BoolVar(&pairDevice, "pair-device", false, "request device pairing on login")
	save.Flags().BoolVar(&forgetDevice, "forget-device", false, "drop the device pairing on logout")
	cmd.AddCommand(save)
	return cmd
}
