package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"animetrack/cmd/cli/dto"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// anime lookups go through the server, which proxies Jikan / AniList
const lookupTimeout = 15 * time.Second

var animeCmd = &cobra.Command{
	Use:   "anime",
	Short: "Look up anime metadata",
}

var animeSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search anime by title",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		query := strings.Join(args, " ")

		st, api := newSession()
		ctx, cancel := context.WithTimeout(cmd.Context(), lookupTimeout)
		defer cancel()

		res, err := api.SearchAnime(ctx, query, page)
		if err != nil {
			return failure(st, err)
		}
		if len(res.Results) == 0 {
			fmt.Printf("🔍 No results for %q\n", query)
			return nil
		}

		fmt.Printf("🔍 Results for %q (page %d)\n", query, res.Page)
		printResults(res)
		if res.HasNextPage {
			fmt.Printf("\nMore: animetrack anime search %s --page %d\n", query, res.Page+1)
		}
		return nil
	},
}

var animeTrendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "List anime trending right now",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")

		st, api := newSession()
		ctx, cancel := context.WithTimeout(cmd.Context(), lookupTimeout)
		defer cancel()

		res, err := api.Trending(ctx, page)
		if err != nil {
			return failure(st, err)
		}
		if len(res.Results) == 0 {
			fmt.Println("📈 Nothing trending right now")
			return nil
		}

		fmt.Printf("📈 Trending (page %d)\n", res.Page)
		printResults(res)
		if res.HasNextPage {
			fmt.Printf("\nMore: animetrack anime trending --page %d\n", res.Page+1)
		}
		return nil
	},
}

var animeShowCmd = &cobra.Command{
	Use:   "show [anime_id]",
	Short: "Show details for one anime",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		animeID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || animeID <= 0 {
			return fmt.Errorf("invalid anime id %q", args[0])
		}

		st, api := newSession()
		ctx, cancel := context.WithTimeout(cmd.Context(), lookupTimeout)
		defer cancel()

		a, err := api.GetAnime(ctx, animeID)
		if err != nil {
			return failure(st, err)
		}

		color.New(color.Bold).Printf("%s", a.Title)
		fmt.Printf(" (MAL %d, via %s)\n", a.AnimeID, a.Source)
		if a.Episodes != nil {
			fmt.Printf("Episodes: %d\n", *a.Episodes)
		}
		if a.Score != nil {
			fmt.Printf("Score:    %.2f\n", *a.Score)
		}
		if a.Synopsis != "" {
			fmt.Printf("\n%s\n", a.Synopsis)
		}
		return nil
	},
}

func printResults(res *dto.SearchPage) {
	fmt.Println("─────────────────────────────────────────────────────────")
	for _, a := range res.Results {
		fmt.Printf("%-7d %s", a.AnimeID, a.Title)
		if a.Episodes != nil {
			fmt.Printf(" (%d eps)", *a.Episodes)
		}
		if a.Score != nil {
			color.New(color.FgYellow).Printf(" ★ %.1f", *a.Score)
		}
		fmt.Println()
	}
}

func init() {
	animeCmd.AddCommand(animeSearchCmd)
	animeCmd.AddCommand(animeTrendingCmd)
	animeCmd.AddCommand(animeShowCmd)

	animeSearchCmd.Flags().IntP("page", "p", 1, "Result page")
	animeTrendingCmd.Flags().IntP("page", "p", 1, "Result page")
}
