package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/industrial-cli/internal/containment"
	"github.com/sells-group/industrial-cli/internal/model"
	"github.com/sells-group/industrial-cli/internal/osm"
	"github.com/sells-group/industrial-cli/internal/pipeline"
	"github.com/sells-group/industrial-cli/internal/report"
	"github.com/sells-group/industrial-cli/internal/resilience"
	"github.com/sells-group/industrial-cli/internal/store"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <input>",
	Short: "Classify the industrial buildings of an OSM extract",
	Long: `Reads an OSM PBF file, an OSM XML file, or a directory of Geofabrik
shapefiles, and reports every building that is tagged industrial, lies in
industrial landuse, or lies in industrial-like landuse that also holds a
tagged industrial building. Each building is reported once.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyClassifyFlags(cmd); err != nil {
			return err
		}
		if err := cfg.Validate("classify"); err != nil {
			return err
		}

		noStore, _ := cmd.Flags().GetBool("no-store")
		outPath, _ := cmd.Flags().GetString("out")
		outFormat, err := report.ParseFormat(cfg.Output.Format)
		if err != nil {
			return err
		}

		run, err := classify(cmd.Context(), args[0], !noStore)
		if err != nil {
			return err
		}

		if err := writeReport(outPath, outFormat, run.buildings); err != nil {
			return err
		}
		return report.WriteSummary(cmd.ErrOrStderr(), run.run)
	},
}

// writeReport writes the buildings to path, or to stdout when path is empty.
func writeReport(path string, format report.Format, buildings []model.IndustrialBuilding) error {
	if path == "" {
		return report.Write(os.Stdout, format, buildings)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := report.Write(f, format, buildings); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}

// classifyRun is what one classify invocation produced.
type classifyRun struct {
	run       model.Run
	buildings []model.IndustrialBuilding
}

func classify(ctx context.Context, input string, persist bool) (*classifyRun, error) {
	log := zap.L().With(zap.String("component", "cmd.classify"), zap.String("input", input))

	matcher, vocab, err := initMatcher()
	if err != nil {
		return nil, err
	}

	format, err := osm.ParseFormat(cfg.Source.Format)
	if err != nil {
		return nil, err
	}
	if format == "" {
		if format, err = osm.DetectFormat(input); err != nil {
			return nil, err
		}
	}
	src, err := osm.Open(input, osm.Options{
		Format:         format,
		Procs:          cfg.Source.Procs,
		BuildingsLayer: cfg.Source.BuildingsLayer,
		LanduseLayer:   cfg.Source.LanduseLayer,
		BuildingKey:    vocab.BuildingKey,
		LanduseKey:     vocab.LanduseKey,
	})
	if err != nil {
		return nil, err
	}

	resolver, closeResolver, err := initResolver(ctx)
	if err != nil {
		return nil, err
	}
	defer closeResolver()

	run := model.Run{Source: input, Format: string(format), Status: model.RunStatusRunning}
	var st store.Store
	if persist {
		if st, err = openMigratedStore(ctx); err != nil {
			return nil, err
		}
		defer st.Close() //nolint:errcheck

		created, err := st.CreateRun(ctx, input, string(format))
		if err != nil {
			return nil, err
		}
		run = *created
	}

	p := pipeline.New(src, matcher, resolver, pipeline.WithWorkers(cfg.Containment.Workers))
	outcome, err := p.Run(ctx, run.ID)
	if err != nil {
		if st != nil {
			if ferr := st.FailRun(context.WithoutCancel(ctx), run.ID, err); ferr != nil {
				log.Error("failed to record run failure", zap.String("run_id", run.ID), zap.Error(ferr))
			}
		}
		return nil, err
	}

	run.ID = outcome.RunID
	run.Status = model.RunStatusComplete
	run.Stats = &outcome.Stats

	if st != nil {
		n, err := st.SaveBuildings(ctx, run.ID, outcome.Buildings)
		if err != nil {
			_ = st.FailRun(context.WithoutCancel(ctx), run.ID, err)
			return nil, err
		}
		if err := st.CompleteRun(ctx, run.ID, outcome.Stats); err != nil {
			return nil, err
		}
		log.Info("run stored", zap.String("run_id", run.ID), zap.Int64("buildings", n))
	}

	return &classifyRun{run: run, buildings: outcome.Buildings}, nil
}

// initResolver builds the configured containment backend, wrapped in an LRU
// cache when cache_size > 0.
func initResolver(ctx context.Context) (containment.Resolver, func(), error) {
	var (
		r       containment.Resolver
		closeFn = func() {}
	)

	switch cfg.Containment.Backend {
	case "memory":
		r = containment.NewIndex(cfg.Containment.CellSize)
	case "postgis":
		pool, closePool, err := initPostGIS(ctx)
		if err != nil {
			return nil, nil, err
		}
		retry := resilience.FromConfig(cfg.Containment.RetryAttempts,
			cfg.Containment.RetryBackoffMs, cfg.Containment.RetryMaxBackoffMs)
		retry.OnRetry = resilience.RetryLogger("containment.postgis", "containing")
		pg, err := containment.NewPostGIS(pool, cfg.Containment.Table,
			containment.WithRateLimit(cfg.Containment.QPS, cfg.Containment.Burst),
			containment.WithRetry(retry))
		if err != nil {
			closePool()
			return nil, nil, err
		}
		r, closeFn = pg, closePool
	default:
		return nil, nil, eris.Errorf("unsupported containment backend: %s", cfg.Containment.Backend)
	}

	if cfg.Containment.CacheSize > 0 {
		cached, err := containment.NewCached(r, cfg.Containment.CacheSize)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		r = cached
	}
	return r, closeFn, nil
}

// applyClassifyFlags copies explicitly set flags over the loaded config.
func applyClassifyFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Source.Format, _ = flags.GetString("format")
	}
	if flags.Changed("output") {
		cfg.Output.Format, _ = flags.GetString("output")
	}
	if flags.Changed("backend") {
		cfg.Containment.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("workers") {
		cfg.Containment.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("vocabulary") {
		cfg.Vocabulary.File, _ = flags.GetString("vocabulary")
	}
	if flags.Changed("industrial-counts-as-like") {
		countsAsLike, _ := flags.GetBool("industrial-counts-as-like")
		cfg.Vocabulary.CountsAsLikeOverride = &countsAsLike
	}
	if cfg.Containment.Workers < 1 {
		return fmt.Errorf("--workers must be >= 1, got %d", cfg.Containment.Workers)
	}
	return nil
}

func addClassifyFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "auto", "input format (auto, pbf, xml, shapefile)")
	cmd.Flags().StringP("output", "o", "csv", "report format (csv, jsonl)")
	cmd.Flags().String("out", "", "write the report to this file instead of stdout")
	cmd.Flags().String("backend", "memory", "containment backend (memory, postgis)")
	cmd.Flags().Int("workers", 4, "concurrent containment lookups")
	cmd.Flags().String("vocabulary", "", "YAML file layered over the tag vocabulary")
	cmd.Flags().Bool("industrial-counts-as-like", false, "treat industrial landuse as industrial-like too")
	cmd.Flags().Bool("no-store", false, "do not record the run in the store")
}

func init() {
	addClassifyFlags(classifyCmd)
	rootCmd.AddCommand(classifyCmd)
}
