package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jrsteele09/synofs/auth"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type loginFlags struct {
	password   string
	otp        string
	pairDevice bool
	timeout    time.Duration
}

func newLoginCmd(c *cli) *cobra.Command {
	flags := &loginFlags{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, c, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.password, "password", "", "password (prompted when omitted)")
	f.StringVar(&flags.otp, "otp", "", "one-time code from the authenticator app")
	f.BoolVar(&flags.pairDevice, "pair-device", false, "ask the NAS to remember this device so later logins skip the one-time code")
	f.DurationVar(&flags.timeout, "timeout", 0, "bound the login attempt (default from SYNOFS_LOGIN_TIMEOUT)")
	return cmd
}

func runLogin(cmd *cobra.Command, c *cli, flags *loginFlags) error {
	a := c.app
	endpoint, user, err := a.target(&c.flags)
	if err != nil {
		return err
	}
	m, err := a.manager(endpoint, user, false)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if m.IsAuthenticated() {
		fmt.Fprintf(out, "Already logged in to %s as %s\n", endpoint, user)
		return nil
	}

	p := newPrompter(os.Stdin, cmd.ErrOrStderr())
	password := flags.password
	if password == "" {
		if password, err = p.secret("Password: "); err != nil {
			return err
		}
	}

	cred := auth.NewCredential(user, password)
	if flags.otp != "" {
		cred = cred.WithOneTimeCode(flags.otp)
	}
	opts := auth.LoginOptions{
		RequestDevicePairing: flags.pairDevice || a.profile.PairDevice,
		Timeout:              flags.timeout,
	}

	err = m.Login(cmd.Context(), cred, opts)
	if errors.Is(err, auth.ErrOneTimeCodeRequired) && flags.otp == "" && p.interactive() {
		code, perr := p.secret("One-time code: ")
		if perr != nil {
			return perr
		}
		err = m.Login(cmd.Context(), cred.WithOneTimeCode(code), opts)
	}
	if err != nil {
		return loginFailure(err)
	}

	fmt.Fprintf(out, "Logged in to %s as %s\n", endpoint, user)
	return nil
}

// loginFailure turns manager errors into messages a user can act on.
func loginFailure(err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return errors.Wrap(err, "login rejected, check the user name and password")
	case errors.Is(err, auth.ErrOneTimeCodeRequired):
		return errors.Wrap(err, "login needs a one-time code, pass --otp")
	case errors.Is(err, auth.ErrOneTimeCodeRejected):
		return errors.Wrap(err, "one-time code rejected, wait for a fresh code and retry")
	case errors.Is(err, auth.ErrTimeout):
		return errors.Wrap(err, "login timed out")
	default:
		return errors.Wrap(err, "login failed")
	}
}
