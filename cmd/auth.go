package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/fitbit"
)

func newAuthCmd() *cobra.Command {
	var tokenFile string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Fitbit access from the terminal",
		Long: `Print the Fitbit authorization URL, read the authorization code (or the
full redirect URL) from stdin, exchange it and store the token.

Use this for stdio deployments where the /callback route is not reachable.
The token is written to the configured token store (TOKEN_STORE).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("token-file") {
				cfg.TokenFile = tokenFile
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			store, closeStore, err := tokenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			logger := newLogger(cmd.ErrOrStderr(), false, false)
			fb := newFitbitStack(cfg, store, logger, nil)
			return runAuth(ctx, fb.oauth, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&tokenFile, "token-file", "", "Path of the Fitbit token file (file store). Can also use TOKEN_FILE env var.")
	return cmd
}

func runAuth(ctx context.Context, oauth *fitbit.OAuth, in io.Reader, out io.Writer) error {
	authURL, err := oauth.AuthCodeURL()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Open this URL in your browser and approve access:\n\n  %s\n\n", authURL)
	fmt.Fprint(out, "Paste the code (or the whole redirect URL): ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading authorization code: %w", err)
	}
	code := extractCode(line)
	if code == "" {
		return fmt.Errorf("no authorization code given")
	}

	tok, err := oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}

	fmt.Fprintln(out, "\nFitbit access authorized.")
	if !tok.Expiry.IsZero() {
		fmt.Fprintf(out, "Access token valid until %s; it is refreshed automatically.\n", tok.Expiry.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// extractCode accepts either a bare code or a redirect URL carrying ?code=.
func extractCode(input string) string {
	input = strings.TrimSpace(input)
	if u, err := url.Parse(input); err == nil && u.Query().Get("code") != "" {
		return u.Query().Get("code")
	}
	return strings.TrimSuffix(input, "#_=_")
}
