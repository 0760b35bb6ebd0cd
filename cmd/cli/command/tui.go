package command

import (
	"fmt"

	"animetrack/cmd/cli/command/cache"
	"animetrack/cmd/cli/command/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse and edit the collection interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, api := newSession()
		userID, err := currentUser(cmd, st)
		if err != nil {
			return err
		}

		model := tui.New(cache.New(api, st), api, st, userID)
		if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
			return fmt.Errorf("tui: %w", err)
		}
		return nil
	},
}

func init() {
	tuiCmd.Flags().Int64("user", 0, "User id (defaults to the logged in user)")
}
