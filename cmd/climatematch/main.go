package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/lox/climatematch/internal/api"
	"github.com/lox/climatematch/internal/config"
	"github.com/lox/climatematch/internal/ingest"
	"github.com/lox/climatematch/internal/pipeline"
	"github.com/lox/climatematch/internal/store"
	"github.com/lox/climatematch/internal/summary"
)

type Globals struct {
	DB string `help:"Path to SQLite database." default:"data/climatematch.db" env:"CLIMATEMATCH_DB"`
}

type CLI struct {
	Globals

	Serve ServeCmd `cmd:"" help:"Run the HTTP API."`
	Score ScoreCmd `cmd:"" help:"Score the cities in a request file and print a summary."`
	Prune PruneCmd `cmd:"" help:"Delete cached payloads and scores older than N days."`
}

type FetchFlags struct {
	Workers     int           `help:"Cities processed concurrently." default:"3" env:"CLIMATEMATCH_WORKERS"`
	CacheMaxAge time.Duration `help:"Reuse fetched payloads younger than this. Zero always refetches." default:"168h" env:"CLIMATEMATCH_CACHE_MAX_AGE"`
}

func (f FetchFlags) pipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Workers = f.Workers
	cfg.CacheMaxAge = f.CacheMaxAge
	return cfg
}

type ServeCmd struct {
	FetchFlags
	Port string `help:"HTTP server port." default:"8080" env:"PORT"`
}

type ScoreCmd struct {
	FetchFlags
	Config string `help:"YAML request file." required:"" type:"existingfile" short:"c"`
}

type PruneCmd struct {
	Days int `help:"Retention in days." default:"30"`
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("climatematch"),
		kong.Description("Score how well US cities' past and projected weather matches a climate preference profile."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

func openStore(path string) (*store.Store, func(), error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	log.Println("database migrated")
	return st, func() { db.Close() }, nil
}

func (c *ServeCmd) Run(g *Globals) error {
	st, closeDB, err := openStore(g.DB)
	if err != nil {
		return err
	}
	defer closeDB()

	runner := pipeline.NewRunner(st, ingest.NewOpenMeteo(ingest.DefaultEndpoints()), c.pipelineConfig())
	server := api.NewServer(st, runner, c.Port)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("starting server on :%s", c.Port)
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (c *ScoreCmd) Run(g *Globals) error {
	req, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	profile, err := req.Profile()
	if err != nil {
		return err
	}

	st, closeDB, err := openStore(g.DB)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := pipeline.NewRunner(st, ingest.NewOpenMeteo(ingest.DefaultEndpoints()), req.PipelineConfig(c.pipelineConfig()))
	results := runner.Run(ctx, req.Cities, profile)

	fmt.Printf("profile %s\n\n", profile.Fingerprint())
	failed := 0
	for _, res := range results {
		fmt.Println(res.Status)
		if res.Err != nil {
			failed++
			continue
		}
		printReport(res.Report)
		fmt.Println()
	}
	if failed == len(results) {
		return fmt.Errorf("all %d cities failed", failed)
	}
	return nil
}

func printReport(r *summary.Report) {
	fmt.Printf("  historical: %s days scored\n", humanize.Comma(int64(len(r.Historical))))
	for _, m := range r.Models {
		fmt.Printf("  %s: %s days scored\n", m.Model, humanize.Comma(int64(len(m.Records))))
	}

	y := r.Yearly
	if y.Stitched {
		fmt.Printf("  stitched at %d (%d historical + %d forecast days)\n", y.SharedYear, y.DaysHistorical, y.DaysForecast)
	}
	for _, s := range y.Historical {
		fmt.Printf("  %d  historical  %5.1f\n", s.Year, s.Mean)
	}
	for _, s := range y.Forecast {
		fmt.Printf("  %d  forecast    %5.1f  (%.1f-%.1f)\n", s.Year, s.Mean, s.Min, s.Max)
	}
	for _, aq := range r.AirQuality {
		healthy := 0.0
		if len(aq.Bands) > 0 {
			healthy = aq.Bands[0].Percent
		}
		fmt.Printf("  %d  PM2.5 %s hours, %.0f%% %s\n", aq.Year, humanize.Comma(int64(aq.Samples)), healthy, summary.Bands[0].Name)
	}
}

func (c *PruneCmd) Run(g *Globals) error {
	st, closeDB, err := openStore(g.DB)
	if err != nil {
		return err
	}
	defer closeDB()

	payloads, err := st.CleanupOldRawPayloads(c.Days)
	if err != nil {
		return fmt.Errorf("prune raw payloads: %w", err)
	}
	scores, err := st.CleanupOldScores(c.Days)
	if err != nil {
		return fmt.Errorf("prune scores: %w", err)
	}
	log.Printf("pruned %s raw payloads and %s scored series older than %d days",
		humanize.Comma(payloads), humanize.Comma(scores), c.Days)

	stats, err := st.GetRawPayloadStats()
	if err != nil {
		return err
	}
	log.Printf("%s raw payloads remain (%s)", humanize.Comma(int64(stats.TotalCount)), humanize.Bytes(uint64(stats.TotalSizeBytes)))
	return nil
}
