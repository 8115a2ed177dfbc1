package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/industrial-cli/internal/containment"
	"github.com/sells-group/industrial-cli/internal/industrial"
	"github.com/sells-group/industrial-cli/internal/osm"
)

var areasCmd = &cobra.Command{
	Use:   "areas",
	Short: "Manage the PostGIS landuse table",
	Long:  "Commands for populating the landuse table used by the postgis containment backend.",
}

// -- areas load --

var areasLoadCmd = &cobra.Command{
	Use:   "load <input>",
	Short: "Replace the landuse table with the closed landuse areas of an extract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if table, _ := cmd.Flags().GetString("table"); table != "" {
			cfg.Containment.Table = table
		}
		if err := cfg.Validate("areas"); err != nil {
			return err
		}

		matcher, vocab, err := initMatcher()
		if err != nil {
			return err
		}
		format, err := osm.ParseFormat(cfg.Source.Format)
		if err != nil {
			return err
		}
		src, err := osm.Open(args[0], osm.Options{
			Format:         format,
			Procs:          cfg.Source.Procs,
			BuildingsLayer: cfg.Source.BuildingsLayer,
			LanduseLayer:   cfg.Source.LanduseLayer,
			BuildingKey:    vocab.BuildingKey,
			LanduseKey:     vocab.LanduseKey,
		})
		if err != nil {
			return err
		}

		collect := &areaCollector{matcher: matcher}
		if err := src.Apply(ctx, collect); err != nil {
			return eris.Wrap(err, "areas load: read source")
		}

		pool, closePool, err := initPostGIS(ctx)
		if err != nil {
			return err
		}
		defer closePool()

		if err := containment.EnsureTable(ctx, pool, cfg.Containment.Table); err != nil {
			return err
		}
		n, err := containment.LoadAreas(ctx, pool, cfg.Containment.Table, matcher, collect.areas, cfg.Containment.BatchSize)
		if err != nil {
			return err
		}

		zap.L().Info("areas load complete",
			zap.String("table", cfg.Containment.Table),
			zap.Int64("rows", n),
			zap.Int("open_skipped", collect.open),
		)
		fmt.Fprintf(os.Stderr, "Loaded %d landuse areas into %s (%d without polygon geometry skipped).\n",
			n, cfg.Containment.Table, collect.open)
		return nil
	},
}

// areaCollector keeps the closed landuse features of a source.
type areaCollector struct {
	matcher *industrial.Matcher
	areas   []osm.Feature
	open    int
}

func (c *areaCollector) Node(osm.Node) error         { return nil }
func (c *areaCollector) Relation(osm.Relation) error { return nil }

func (c *areaCollector) Way(f osm.Feature) error {
	if !c.matcher.IsLanduse(f.Tags) {
		return nil
	}
	if !f.Closed() {
		c.open++
		return nil
	}
	c.areas = append(c.areas, f)
	return nil
}

func init() {
	areasLoadCmd.Flags().String("table", "", "landuse table (default from containment.table)")

	areasCmd.AddCommand(areasLoadCmd)
	rootCmd.AddCommand(areasCmd)
}
