package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"animetrack/cmd/cli/command/cache"
	"animetrack/cmd/cli/command/state"
	"animetrack/cmd/cli/dto"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var collectionCmd = &cobra.Command{
	Use:     "collection",
	Aliases: []string{"col"},
	Short:   "Manage your anime collection",
	Long:    `List, add, update and remove anime in a collection.`,
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every anime in the collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, api := newSession()
		userID, err := currentUser(cmd, st)
		if err != nil {
			return err
		}

		c := cache.New(api, st)
		if err := c.Load(cmd.Context(), userID); err != nil {
			return errors.New(st.Error())
		}

		items := c.Items()
		if len(items) == 0 {
			fmt.Println("📺 The collection is empty")
			return nil
		}

		fmt.Printf("📺 Collection of user %d (%d anime)\n", userID, len(items))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ITEM\tANIME\tTITLE\tSTATUS\tEPISODES\tRATING\tFAV")
		for _, it := range items {
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
				it.ID, it.AnimeID, it.DisplayTitle(), it.Status,
				episodes(it), rating(it.Rating), favorite(it.IsFavorite))
		}
		return w.Flush()
	},
}

var collectionAddCmd = &cobra.Command{
	Use:   "add [anime_id]",
	Short: "Add an anime to the collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		animeID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || animeID <= 0 {
			return fmt.Errorf("invalid anime id %q", args[0])
		}

		st, api := newSession()
		userID, err := currentUser(cmd, st)
		if err != nil {
			return err
		}

		req := dto.CreateCollectionRequest{UserID: userID, AnimeID: animeID}
		req.Origin, _ = cmd.Flags().GetString("origin")
		if cmd.Flags().Changed("status") {
			s, _ := cmd.Flags().GetString("status")
			req.Status = &s
		}
		if cmd.Flags().Changed("rating") {
			r, _ := cmd.Flags().GetFloat64("rating")
			req.Rating = &r
		}
		if cmd.Flags().Changed("episodes") {
			e, _ := cmd.Flags().GetInt("episodes")
			req.EpisodesWatched = &e
		}
		if cmd.Flags().Changed("notes") {
			n, _ := cmd.Flags().GetString("notes")
			req.Notes = &n
		}
		if cmd.Flags().Changed("favorite") {
			f, _ := cmd.Flags().GetBool("favorite")
			req.IsFavorite = &f
		}

		item, err := cache.New(api, st).Add(cmd.Context(), req)
		if err != nil {
			return failure(st, err)
		}
		color.Green("✅ Added %s as item %d (%s)", item.DisplayTitle(), item.ID, item.Status)
		return nil
	},
}

var collectionUpdateCmd = &cobra.Command{
	Use:   "update [item_id]",
	Short: "Change fields of a collection item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || itemID <= 0 {
			return fmt.Errorf("invalid item id %q", args[0])
		}

		var patch dto.CollectionPatch
		if cmd.Flags().Changed("status") {
			s, _ := cmd.Flags().GetString("status")
			patch.Status = &s
		}
		if cmd.Flags().Changed("rating") {
			r, _ := cmd.Flags().GetFloat64("rating")
			patch.Rating = &r
		}
		if cmd.Flags().Changed("episodes") {
			e, _ := cmd.Flags().GetInt("episodes")
			patch.EpisodesWatched = &e
		}
		if cmd.Flags().Changed("notes") {
			n, _ := cmd.Flags().GetString("notes")
			patch.Notes = &n
		}
		if cmd.Flags().Changed("favorite") {
			f, _ := cmd.Flags().GetBool("favorite")
			patch.IsFavorite = &f
		}
		patch.ClearRating, _ = cmd.Flags().GetBool("clear-rating")
		patch.ClearNotes, _ = cmd.Flags().GetBool("clear-notes")
		if patch.IsEmpty() {
			return errors.New("nothing to update: pass at least one field flag")
		}

		st, api := newSession()
		c := cache.New(api, st)
		current, err := api.GetCollectionItem(cmd.Context(), itemID)
		if err != nil {
			return failure(st, err)
		}
		if err := c.Load(cmd.Context(), current.UserID); err != nil {
			return errors.New(st.Error())
		}

		item, err := c.Update(cmd.Context(), itemID, patch)
		if err != nil {
			return failure(st, err)
		}
		color.Green("✅ Updated item %d: %s, %s episodes, rating %s",
			item.ID, item.Status, episodes(*item), rating(item.Rating))
		return nil
	},
}

var collectionRemoveCmd = &cobra.Command{
	Use:   "remove [item_id]",
	Short: "Remove an item from the collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || itemID <= 0 {
			return fmt.Errorf("invalid item id %q", args[0])
		}

		st, api := newSession()
		if err := api.DeleteCollectionItem(cmd.Context(), itemID); err != nil {
			return failure(st, err)
		}
		color.Green("✅ Removed item %d", itemID)
		return nil
	},
}

var collectionRefreshCmd = &cobra.Command{
	Use:   "refresh [item_id]",
	Short: "Re-fetch title, episodes and score for an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || itemID <= 0 {
			return fmt.Errorf("invalid item id %q", args[0])
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), lookupTimeout)
		defer cancel()

		st, api := newSession()
		item, err := api.RefreshMetadata(ctx, itemID)
		if err != nil {
			return failure(st, err)
		}
		color.Green("✅ %s (%s episodes)", item.DisplayTitle(), episodes(*item))
		return nil
	},
}

// failure prefers the message the cache already put on the session.
func failure(st *state.AppState, err error) error {
	if msg := st.Error(); msg != "" {
		return errors.New(msg)
	}
	return errors.New(cache.Describe("Request", err))
}

func episodes(it dto.CollectionItem) string {
	if it.TotalEpisodes != nil {
		return fmt.Sprintf("%d/%d", it.EpisodesWatched, *it.TotalEpisodes)
	}
	return strconv.Itoa(it.EpisodesWatched)
}

func rating(r *float64) string {
	if r == nil {
		return "-"
	}
	return strconv.FormatFloat(*r, 'f', -1, 64)
}

func favorite(f bool) string {
	if f {
		return "★"
	}
	return ""
}

func addItemFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("status", "s", "", "Watch status ("+strings.Join(dto.Statuses, ", ")+")")
	cmd.Flags().Float64P("rating", "r", 0, "Rating from 0 to 10")
	cmd.Flags().IntP("episodes", "e", 0, "Episodes watched")
	cmd.Flags().StringP("notes", "n", "", "Free-form notes")
	cmd.Flags().BoolP("favorite", "f", false, "Mark as favorite")
}

func init() {
	collectionCmd.AddCommand(collectionListCmd)
	collectionCmd.AddCommand(collectionAddCmd)
	collectionCmd.AddCommand(collectionUpdateCmd)
	collectionCmd.AddCommand(collectionRemoveCmd)
	collectionCmd.AddCommand(collectionRefreshCmd)

	collectionCmd.PersistentFlags().Int64("user", 0, "User id (defaults to the logged in user)")

	addItemFlags(collectionAddCmd)
	collectionAddCmd.Flags().String("origin", "manual", "Where the save came from (manual, search)")

	addItemFlags(collectionUpdateCmd)
	collectionUpdateCmd.Flags().Bool("clear-rating", false, "Remove the rating")
	collectionUpdateCmd.Flags().Bool("clear-notes", false, "Remove the notes")
}
