package command

// root.go defines the root command for the animetrack CLI and the session
// (config file + API client) shared by every subcommand.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"animetrack/cmd/cli/authentication"
	"animetrack/cmd/cli/command/client"
	"animetrack/cmd/cli/command/state"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultAPIURL = "http://localhost:8080"

var cfgFile string // config file path

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "animetrack",
	Short: "animetrack - track the anime you watch",
	Long: `animetrack is the command line client for the animetrack API. Use it to:
- Search anime on Jikan / AniList
- Keep a collection with watch status, rating, episodes and notes
- Browse and edit the collection in an interactive terminal UI

Use "animetrack [command] --help" to see all available commands.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().String("api", defaultAPIURL, "API server URL")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.config/animetrack/config.yaml)")
	_ = viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api"))

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(collectionCmd)
	rootCmd.AddCommand(animeCmd)
	rootCmd.AddCommand(tuiCmd)
}

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "animetrack")
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return filepath.Join(configDir(), "config.yaml")
}

// initConfig reads the config file and ANIMETRACK_* environment overrides.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
	}
	viper.SetEnvPrefix("ANIMETRACK")
	viper.AutomaticEnv()
	viper.SetDefault("api_url", defaultAPIURL)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// no config file yet is fine
	}
	return nil
}

// newSession builds the per-process state and API client. The token comes
// from the OS keyring, or from the config file where no keyring exists.
func newSession() (*state.AppState, *client.HTTPClient) {
	st := state.New(viper.GetString("api_url"))
	if creds, err := authentication.GetTokens(); err == nil {
		if !creds.Expired(time.Now()) {
			st.SetSession(creds.AccessToken, creds.UserID, creds.Username)
		}
	} else if token := viper.GetString("token"); token != "" {
		st.SetSession(token, viper.GetInt64("user_id"), viper.GetString("username"))
	}
	return st, client.NewHTTPClient(st)
}

// saveSession stores the login in the keyring. Without a usable keyring it
// is written to the config file instead, readable only by the owner.
func saveSession(creds *authentication.StoredCredentials) error {
	if err := authentication.StoreTokens(creds); err == nil {
		return writeConfigSession("", 0, "")
	}
	return writeConfigSession(creds.AccessToken, creds.UserID, creds.Username)
}

// clearSession forgets the login in both places.
func clearSession() error {
	// an unusable keyring holds nothing to delete
	_ = authentication.DeleteTokens()
	return writeConfigSession("", 0, "")
}

func writeConfigSession(token string, userID int64, username string) error {
	viper.Set("token", token)
	viper.Set("user_id", userID)
	viper.Set("username", username)

	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// currentUser returns --user if set, otherwise the logged in user.
func currentUser(cmd *cobra.Command, st *state.AppState) (int64, error) {
	if userID, _ := cmd.Flags().GetInt64("user"); userID > 0 {
		return userID, nil
	}
	if st.UserID() > 0 {
		return st.UserID(), nil
	}
	return 0, errors.New("not logged in: run `animetrack auth login` or pass --user")
}
