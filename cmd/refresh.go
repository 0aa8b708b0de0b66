package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/plexpg/plexbench/plexapi"
	"github.com/spf13/cobra"
)

var (
	refreshURL     string
	refreshToken   string
	refreshSection int
	refreshHelpTok bool
)

var errRefreshFailed = errors.New("refresh failed")

// refreshCmd tells the Plex server to re-read metadata after the
// database has been changed behind its back.
var refreshCmd = &cobra.Command{
	Use:   "refresh [item-id]",
	Short: "Refresh a Plex metadata item or library section over HTTP",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if refreshHelpTok {
			fmt.Print(plexapi.TokenInstructions)
			return nil
		}
		if len(args) == 0 && refreshSection == 0 {
			return errors.New("either an item id or --section is required")
		}

		token := refreshToken
		if token == "" {
			token = os.Getenv("PLEX_TOKEN")
		}
		client, err := plexapi.NewClient(refreshURL, token, os.Stdout)
		if err != nil {
			return fmt.Errorf("%w (run with --help-token for instructions)", err)
		}

		if refreshSection > 0 {
			if !client.RefreshSection(refreshSection) {
				return errRefreshFailed
			}
			return nil
		}

		itemID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("item id %q is not a number", args[0])
		}
		if !client.RefreshItem(itemID) {
			return errRefreshFailed
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().StringVarP(&refreshURL, "url", "u", plexapi.DefaultBaseURL, "Plex server URL")
	refreshCmd.Flags().StringVarP(&refreshToken, "token", "t", "", "Plex authentication token (default: PLEX_TOKEN)")
	refreshCmd.Flags().IntVarP(&refreshSection, "section", "s", 0, "Refresh a whole library section by id")
	refreshCmd.Flags().BoolVar(&refreshHelpTok, "help-token", false, "Show how to obtain a Plex token")
}
