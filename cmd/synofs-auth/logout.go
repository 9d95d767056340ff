package main

import (
	"fmt"

	"github.com/jrsteele09/synofs/auth"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newLogoutCmd(c *cli) *cobra.Command {
	var forgetDevice bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the remote session and remove it locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			endpoint, user, err := a.target(&c.flags)
			if err != nil {
				return err
			}
			m, err := a.manager(endpoint, user, forgetDevice || a.profile.ForgetOnLogout)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			res, err := m.Logout(cmd.Context())
			if errors.Is(err, auth.ErrInvalidState) {
				fmt.Fprintf(out, "Not logged in to %s as %s\n", endpoint, user)
				return nil
			}
			if err != nil {
				return errors.Wrap(err, "logout failed")
			}
			if res.RemoteErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: the NAS did not confirm the logout: %s\n", res.RemoteErr)
			}
			fmt.Fprintf(out, "Logged out of %s as %s\n", endpoint, user)
			return nil
		},
	}

	cmd.Flags().BoolVar(&forgetDevice, "forget-device", false, "also drop the device pairing so the next login needs a one-time code")
	return cmd
}
