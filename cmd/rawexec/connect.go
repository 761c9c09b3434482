package main

import (
	"fmt"

	"github.com/WhileEndless/go-rawexec/pkg/client"
	"github.com/WhileEndless/go-rawexec/pkg/config"
	"github.com/WhileEndless/go-rawexec/pkg/errors"
	"github.com/WhileEndless/go-rawexec/pkg/request"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newConnectCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "connect [proxy-url] <host:port>",
		Short: "Ask a proxy to open a CONNECT tunnel and report its answer",
		Long: `connect sends "CONNECT host:port" to an http:// or https:// proxy. Credentials in
the proxy URL are sent as Proxy-Authorization. Without a proxy URL the proxy from the
config file is used.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config(cmd)
			if err != nil {
				return err
			}
			if o.noColor {
				color.NoColor = true
			}

			proxyURL, target := cfg.Proxy, args[0]
			if len(args) == 2 {
				proxyURL, target = args[0], args[1]
			}
			if proxyURL == "" {
				return withExit(ExitUsageError, errors.NewValidationError("no proxy URL given and none configured"))
			}
			pu, err := config.ParseProxyURL(proxyURL)
			if err != nil {
				return withExit(ExitUsageError, err)
			}
			req, err := request.BuildConnect(pu, target)
			if err != nil {
				return withExit(ExitUsageError, err)
			}
			req.Policy = cfg.Policy()
			req.Policy.FollowRedirects = false
			if err := applyHeaders(req.Header, o.headers); err != nil {
				return withExit(ExitUsageError, err)
			}

			c := client.New(client.Options{
				Transport: cfg.TransportConfig(),
				Logger:    o.logger(cmd.ErrOrStderr()),
			})
			resp, err := c.Execute(cmd.Context(), req, cfg.Timeout)
			if err != nil {
				return err
			}
			defer resp.Close()

			out := cmd.OutOrStdout()
			if o.verbose {
				printHead(out, resp)
			}
			if resp.StatusCode/100 != 2 {
				return withExit(ExitFailure, fmt.Errorf("proxy %s refused CONNECT %s: status %d", pu.Authority(), target, resp.StatusCode))
			}
			color.New(color.FgGreen).Fprintf(out, "tunnel to %s established via %s (%s %d)\n",
				target, pu.Authority(), resp.Proto, resp.StatusCode)
			return nil
		},
	}
}
