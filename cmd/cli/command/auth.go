package command

import (
	"context"
	"fmt"
	"time"

	"animetrack/cmd/cli/authentication"
	"animetrack/cmd/cli/dto"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// authCmd represents the auth command for authentication related subcommands
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  `Authenticate with the animetrack API server. Supports register, login, logout and whoami.`,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new account",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req dto.RegisterRequest
		req.Username, _ = cmd.Flags().GetString("username")
		req.Password, _ = cmd.Flags().GetString("password")
		req.Email, _ = cmd.Flags().GetString("email")

		_, api := newSession()
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		user, err := api.Register(ctx, req)
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}

		color.Green("✓ Registration successful! Please login to continue.")
		fmt.Printf("UserID: %d\n", user.ID)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login and store the access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req dto.LoginRequest
		req.Username, _ = cmd.Flags().GetString("username")
		req.Password, _ = cmd.Flags().GetString("password")

		st, api := newSession()
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		resp, err := api.Login(ctx, req)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		creds := &authentication.StoredCredentials{
			AccessToken: resp.AccessToken,
			UserID:      resp.UserID,
			Username:    resp.Username,
		}
		if resp.ExpiresIn > 0 {
			creds.ExpiresAt = time.Now().Unix() + resp.ExpiresIn
		}
		st.SetSession(resp.AccessToken, resp.UserID, resp.Username)
		if err := saveSession(creds); err != nil {
			return err
		}

		color.Green("✓ Logged in as %s (user %d)", resp.Username, resp.UserID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := clearSession(); err != nil {
			return err
		}
		color.Green("✓ Successfully logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in account",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, api := newSession()
		if !st.LoggedIn() {
			return fmt.Errorf("not logged in")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		user, err := api.Me(ctx)
		if err != nil {
			return fmt.Errorf("could not fetch account: %w", err)
		}
		fmt.Printf("%s <%s> (user %d, role %s)\n", user.Username, user.Email, user.ID, user.Role)
		return nil
	},
}

func init() {
	authCmd.AddCommand(registerCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(whoamiCmd)

	registerCmd.Flags().StringP("username", "u", "", "Username for the new account")
	registerCmd.Flags().StringP("password", "p", "", "Password for the new account")
	registerCmd.Flags().StringP("email", "e", "", "Email address for the new account")
	registerCmd.MarkFlagRequired("username")
	registerCmd.MarkFlagRequired("password")
	registerCmd.MarkFlagRequired("email")

	loginCmd.Flags().StringP("username", "u", "", "Username for the account")
	loginCmd.Flags().StringP("password", "p", "", "Password for the account")
	loginCmd.MarkFlagRequired("username")
	loginCmd.MarkFlagRequired("password")
}
