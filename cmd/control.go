package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jandubois/rsvctl/internal/control"
	"github.com/jandubois/rsvctl/internal/status"
)

func commandFlags(cmd *cobra.Command) control.Flags {
	list, _ := cmd.Flags().GetBool("list")
	enable, _ := cmd.Flags().GetBool("enable")
	disable, _ := cmd.Flags().GetBool("disable")
	test, _ := cmd.Flags().GetBool("test")
	fullTest, _ := cmd.Flags().GetBool("full-test")
	return control.Flags{
		List:     list,
		Enable:   enable,
		Disable:  disable,
		Test:     test,
		FullTest: fullTest,
	}
}

// buildRequest validates the flags and turns them into a control request.
func buildRequest(cmd *cobra.Command, args []string) (control.Request, error) {
	command, err := control.SelectCommand(commandFlags(cmd))
	if err != nil {
		return control.Request{}, err
	}

	formatName, _ := cmd.Flags().GetString("format")
	format, err := status.ParseFormat(formatName)
	if err != nil {
		return control.Request{}, err
	}

	width := status.WidthDefault
	if full, _ := cmd.Flags().GetBool("full-width"); full {
		width = status.WidthFull
	} else if wide, _ := cmd.Flags().GetBool("wide"); wide {
		width = status.WidthWide
	}

	metric, _ := cmd.Flags().GetString("metric")
	service, _ := cmd.Flags().GetString("service")
	host, _ := cmd.Flags().GetString("host")
	user, _ := cmd.Flags().GetString("user")
	pattern, _ := cmd.Flags().GetString("pattern")

	if metric != "" && service != "" {
		return control.Request{}, errors.New("--metric and --service are mutually exclusive")
	}
	if command != control.List && len(args) > 0 {
		return control.Request{}, fmt.Errorf("unexpected argument %q for --%s", args[0], command)
	}

	req := control.Request{
		Command: command,
		Selector: control.Selector{
			Metric:  metric,
			Service: service,
			Host:    host,
			User:    user,
		},
		Pattern: pattern,
		Format:  format,
		Width:   width,
		Color:   cmd.OutOrStdout() == os.Stdout && term.IsTerminal(int(os.Stdout.Fd())),
	}
	if len(args) > 0 {
		req.Target = args[0]
	}
	return req, nil
}

func runControl(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(cmd, args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	err = a.controller(cmd.OutOrStdout(), cmd.ErrOrStderr()).Dispatch(ctx, req)
	if err != nil && control.IsNonFatal(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "ERROR: %v\n", err)
		return nil
	}
	return err
}
