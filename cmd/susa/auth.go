package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"

	"github.com/Veraticus/susa-must-flow/internal/cli"
	"github.com/Veraticus/susa-must-flow/internal/config"
	"github.com/Veraticus/susa-must-flow/internal/session"
	"github.com/Veraticus/susa-must-flow/internal/sheets"
)

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in to the analysis backend",
		Long: `Sign in with the OAuth2 device flow.

You will get a URL and a short code. Open the URL in any browser, enter the
code, and the token is saved to auth.token_file for later commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tok, err := session.Login(cmd.Context(), cfg.Auth, func(resp *oauth2.DeviceAuthResponse) {
				uri := resp.VerificationURI
				if resp.VerificationURIComplete != "" {
					uri = resp.VerificationURIComplete
				}
				fmt.Fprintln(out, cli.RenderBox("Sign in",
					fmt.Sprintf("Open %s\nand enter the code %s", uri, cli.PromptStyle.Render(resp.UserCode))))
				fmt.Fprintln(out, cli.FormatInfo("Waiting for confirmation..."))
			})
			if err != nil {
				return err
			}

			who := "signed in"
			if claims, err := session.Inspect(tok.AccessToken); err == nil {
				who = "signed in as " + identity(claims)
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Successfully %s. Token saved to %s", who, cfg.Auth.TokenFile)))
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := session.Logout(cfg.Auth.TokenFile); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Signed out."))
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity of the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			provider, err := cfg.SessionProvider()
			if err != nil {
				return err
			}

			raw, err := provider.Token(cmd.Context())
			if err != nil {
				if errors.Is(err, session.ErrNoSession) {
					return fmt.Errorf("not signed in, run `susa login`: %w", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			claims, err := session.Inspect(raw)
			if err != nil {
				fmt.Fprintln(out, cli.FormatInfo("Signed in with an opaque access token."))
				return nil //nolint:nilerr // opaque tokens are valid, they just cannot be inspected
			}

			lines := []string{"Subject: " + claims.Subject}
			if claims.Email != "" {
				lines = append(lines, "Email:   "+claims.Email)
			}
			if claims.Issuer != "" {
				lines = append(lines, "Issuer:  "+claims.Issuer)
			}
			if !claims.ExpiresAt.IsZero() {
				lines = append(lines, "Expires: "+claims.ExpiresAt.Local().Format(time.RFC1123))
			}
			fmt.Fprintln(out, cli.RenderBox("Session", strings.Join(lines, "\n")))

			if claims.Expired(time.Now()) {
				fmt.Fprintln(out, cli.FormatWarning("The access token has expired."))
			}
			return nil
		},
	}
}

func sheetsLoginCmd() *cobra.Command {
	var listen, tokenFile string

	cmd := &cobra.Command{
		Use:   "sheets-login",
		Short: "Authorize Google Sheets exports",
		Long: `Run the Google OAuth2 consent flow for "susa export --sheets".

Requires sheets.client_id and sheets.client_secret. The refresh token printed
at the end belongs in sheets.refresh_token (or SUSA_SHEETS_REFRESH_TOKEN).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			tok, err := sheets.AuthenticateOAuth2Interactive(cmd.Context(), sheets.OAuth2Config{
				ClientID:     viper.GetString("sheets.client_id"),
				ClientSecret: viper.GetString("sheets.client_secret"),
				ListenAddr:   listen,
				TokenFile:    config.ExpandPath(tokenFile),
			}, func(authURL string) {
				fmt.Fprintln(out, cli.RenderBox("Google Sheets", "Open this URL in your browser:\n"+authURL))
			})
			if err != nil {
				return err
			}

			if tok.RefreshToken == "" {
				fmt.Fprintln(out, cli.FormatWarning("Google did not return a refresh token. Revoke the app's access and try again."))
				return nil
			}
			fmt.Fprintln(out, cli.FormatSuccess("Authorized."))
			fmt.Fprintln(out, "Add this to your config:\n\nsheets:\n  refresh_token: "+tok.RefreshToken)
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "localhost:8080", "address for the OAuth2 callback")
	cmd.Flags().StringVar(&tokenFile, "token-file", "", "also save the token to this file")

	return cmd
}

func identity(c *session.Claims) string {
	if c.Email != "" {
		return c.Email
	}
	if c.Subject != "" {
		return c.Subject
	}
	return "unknown user"
}
