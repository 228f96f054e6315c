package main

import (
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cafe-compass/compass-cli/internal/fetcher"
	"github.com/cafe-compass/compass-cli/internal/tiger"
)

var tigerCmd = &cobra.Command{
	Use:   "tiger",
	Short: "Download and inspect TIGER/Line shapefiles",
}

var (
	tigerProduct string
	tigerDir     string
)

var tigerDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download and extract a TIGER/Line shapefile for the configured state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var url string
		switch tigerProduct {
		case "block":
			url = tiger.BlockURL(cfg.Tiger.BaseURL, cfg.Tiger.Year, cfg.Tiger.StateFIPS)
		case "tract":
			url = tiger.TractURL(cfg.Tiger.BaseURL, cfg.Tiger.Year, cfg.Tiger.StateFIPS)
		default:
			return eris.Errorf("unknown product %q (block, tract)", tigerProduct)
		}

		dir := tigerDir
		if dir == "" {
			dir = cfg.Tiger.TempDir
		}
		shp, err := tiger.Download(ctx, fetcher.NewRouter(), url, dir)
		if err != nil {
			return err
		}
		fmt.Println(shp)
		return nil
	},
}

var tigerCountiesCmd = &cobra.Command{
	Use:   "counties <block.shp>",
	Short: "Print the tract to county mapping derived from a block shapefile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		blocks, err := tiger.ReadBlocks(args[0])
		if err != nil {
			return err
		}
		overrides := maps.Clone(tiger.DefaultCountyOverrides)
		maps.Copy(overrides, cfg.Tiger.CountyOverride)
		mapping := tiger.BuildCountyMapping(blocks, overrides)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "TRACT\tCOUNTY")
		for _, tract := range slices.Sorted(maps.Keys(mapping)) {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", tract, mapping[tract])
		}
		return w.Flush()
	},
}

func init() {
	tigerDownloadCmd.Flags().StringVar(&tigerProduct, "product", "block", "shapefile product (block, tract)")
	tigerDownloadCmd.Flags().StringVar(&tigerDir, "dir", "", "download directory (default from config)")

	tigerCmd.AddCommand(tigerDownloadCmd, tigerCountiesCmd)
	rootCmd.AddCommand(tigerCmd)
}
