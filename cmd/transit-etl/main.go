package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/mgalarneau/NYC-Transit-Project/internal/cache"
	"github.com/mgalarneau/NYC-Transit-Project/internal/extract"
	"github.com/mgalarneau/NYC-Transit-Project/internal/load"
	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
	"github.com/mgalarneau/NYC-Transit-Project/internal/pipeline"
	"github.com/mgalarneau/NYC-Transit-Project/internal/store"
)

type globals struct {
	DB           string `name:"db" default:"data/transit.db" env:"TRANSIT_DB" help:"Path to the SQLite warehouse."`
	CacheDir     string `default:"data/cache" env:"TRANSIT_CACHE_DIR" help:"Directory for extraction cache snapshots."`
	SocrataToken string `env:"SOCRATA_APP_TOKEN" help:"Socrata app token for higher rate limits."`
	RidershipURL string `env:"RIDERSHIP_URL" help:"Override the ridership API endpoint."`
	WeatherURL   string `env:"WEATHER_URL" help:"Override the weather API endpoint."`
	MetricsAddr  string `env:"METRICS_ADDR" help:"Optional listen address for the Prometheus /metrics endpoint."`
}

type requestFlags struct {
	Start               time.Time `required:"" format:"2006-01-02" help:"Start date (inclusive)."`
	End                 time.Time `required:"" format:"2006-01-02" help:"End date (inclusive)."`
	Latitude            float64   `default:"40.7128" help:"Weather coordinate latitude."`
	Longitude           float64   `default:"-74.0060" help:"Weather coordinate longitude."`
	RowLimit            int       `default:"500000" help:"Maximum ridership rows to extract."`
	AllowPartialWeather bool      `help:"Continue ridership-only when the weather source fails."`
}

func (f requestFlags) request() models.Request {
	return models.Request{
		StartDate:           f.Start.UTC(),
		EndDate:             f.End.UTC(),
		Latitude:            f.Latitude,
		Longitude:           f.Longitude,
		RowLimit:            f.RowLimit,
		RidershipSource:     "socrata",
		WeatherSource:       "open-meteo",
		AllowPartialWeather: f.AllowPartialWeather,
	}
}

type sinkFlags struct {
	CSV         string `help:"Write the merged dataset to this CSV file." placeholder:"PATH"`
	JSON        string `help:"Write the merged dataset and quality report to this JSON file." placeholder:"PATH"`
	Summary     string `help:"Write summary statistics to this CSV file." placeholder:"PATH"`
	PostgresURL string `env:"POSTGRES_URL" help:"Also load into this Postgres database."`
	NoWarehouse bool   `help:"Skip loading into the SQLite warehouse."`
}

type runCmd struct {
	requestFlags
	sinkFlags
	Refresh bool `help:"Invalidate the cache entry for this request before running."`
}

type scheduleCmd struct {
	sinkFlags
	Latitude            float64       `default:"40.7128" help:"Weather coordinate latitude."`
	Longitude           float64       `default:"-74.0060" help:"Weather coordinate longitude."`
	RowLimit            int           `default:"500000" help:"Maximum ridership rows per refresh."`
	AllowPartialWeather bool          `help:"Continue ridership-only when the weather source fails."`
	WindowDays          int           `default:"7" help:"Trailing window of days to refresh."`
	Interval            time.Duration `default:"6h" help:"Refresh interval."`
}

type cacheCmd struct {
	Invalidate cacheInvalidateCmd `cmd:"" help:"Remove cache entries."`
}

type cacheInvalidateCmd struct {
	All                 bool      `help:"Remove every cache entry."`
	Start               time.Time `format:"2006-01-02" help:"Start date of the entry to remove."`
	End                 time.Time `format:"2006-01-02" help:"End date of the entry to remove."`
	Latitude            float64   `default:"40.7128"`
	Longitude           float64   `default:"-74.0060"`
	RowLimit            int       `default:"500000"`
	AllowPartialWeather bool      `hidden:""`
}

type queryCmd struct {
	Year      *int       `help:"Filter by calendar year."`
	Month     *int       `help:"Filter by calendar month (1-12)."`
	DayOfWeek *int       `name:"dow" help:"Filter by day of week (0=Monday)."`
	Route     string     `help:"Filter by route."`
	Start     *time.Time `format:"2006-01-02" help:"Earliest timestamp."`
	End       *time.Time `format:"2006-01-02" help:"Latest timestamp."`
	Limit     int        `default:"20" help:"Maximum rows to print."`
}

type runsCmd struct {
	Limit int `default:"10" help:"Number of recent runs to show."`
}

type cli struct {
	globals

	Run      runCmd      `cmd:"" help:"Run the pipeline once for a date range."`
	Schedule scheduleCmd `cmd:"" help:"Refresh a trailing window on an interval."`
	Cache    cacheCmd    `cmd:"" help:"Manage the extraction cache."`
	Query    queryCmd    `cmd:"" help:"Query the warehouse."`
	Runs     runsCmd     `cmd:"" help:"Show recent pipeline runs."`
}

func main() {
	var app cli
	ctx := kong.Parse(&app,
		kong.Name("transit-etl"),
		kong.Description("Transit ridership and weather ETL pipeline."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&app.globals))
}

func openStore(g *globals) (*store.Store, *sql.DB, error) {
	db, err := sql.Open("sqlite", g.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, db, nil
}

func newExtractor(g *globals) *extract.Extractor {
	ridership := extract.NewRidershipClient(g.RidershipURL, g.SocrataToken)
	weather := extract.NewWeatherClient(g.WeatherURL)
	return extract.NewExtractor(ridership, weather)
}

func serveMetrics(addr string) {
	if addr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("metrics: listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("metrics: server stopped: %v", err)
		}
	}()
}

func buildSinks(flags sinkFlags, st *store.Store) func(models.Request) ([]load.Sink, error) {
	return func(req models.Request) ([]load.Sink, error) {
		var sinks []load.Sink
		if flags.CSV != "" {
			sinks = append(sinks, &load.CSVSink{Path: flags.CSV})
		}
		if flags.JSON != "" {
			sinks = append(sinks, &load.JSONSink{Path: flags.JSON})
		}
		if flags.Summary != "" {
			sinks = append(sinks, &load.SummarySink{Path: flags.Summary})
		}
		if !flags.NoWarehouse && st != nil {
			sinks = append(sinks, &load.StoreSink{
				Store: st,
				Start: req.StartDate,
				End:   req.EndDate.Add(24*time.Hour - time.Nanosecond),
			})
		}
		if flags.PostgresURL != "" {
			pg, err := load.NewPostgresSink(flags.PostgresURL, req.StartDate, req.EndDate.Add(24*time.Hour-time.Nanosecond))
			if err != nil {
				return nil, fmt.Errorf("postgres sink: %w", err)
			}
			sinks = append(sinks, pg)
		}
		return sinks, nil
	}
}

func (c *runCmd) Run(g *globals) error {
	st, db, err := openStore(g)
	if err != nil {
		return err
	}
	defer db.Close()

	cacheMgr, err := cache.NewManager(g.CacheDir)
	if err != nil {
		return err
	}

	serveMetrics(g.MetricsAddr)

	req := c.request()
	if c.Refresh {
		if err := cacheMgr.Invalidate(req); err != nil {
			return err
		}
	}

	runner := pipeline.NewRunner(newExtractor(g), cacheMgr, st, buildSinks(c.sinkFlags, st))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	summary, err := runner.Run(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("run %s: %d rows merged in %s (cache hit: %t)\n",
		summary.RunID, summary.RowsMerged, summary.CompletedAt.Sub(summary.StartedAt).Round(time.Millisecond), summary.CacheHit)
	return nil
}

func (c *scheduleCmd) Run(g *globals) error {
	st, db, err := openStore(g)
	if err != nil {
		return err
	}
	defer db.Close()

	cacheMgr, err := cache.NewManager(g.CacheDir)
	if err != nil {
		return err
	}

	serveMetrics(g.MetricsAddr)

	base := models.Request{
		Latitude:            c.Latitude,
		Longitude:           c.Longitude,
		RowLimit:            c.RowLimit,
		RidershipSource:     "socrata",
		WeatherSource:       "open-meteo",
		AllowPartialWeather: c.AllowPartialWeather,
	}

	runner := pipeline.NewRunner(newExtractor(g), cacheMgr, st, buildSinks(c.sinkFlags, st))
	sched := pipeline.NewScheduler(runner, cacheMgr, base, c.WindowDays, c.Interval)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func (c *cacheInvalidateCmd) Run(g *globals) error {
	cacheMgr, err := cache.NewManager(g.CacheDir)
	if err != nil {
		return err
	}
	if c.All {
		if err := cacheMgr.InvalidateAll(); err != nil {
			return err
		}
		fmt.Println("cache cleared")
		return nil
	}
	if c.Start.IsZero() || c.End.IsZero() {
		return fmt.Errorf("either --all or both --start and --end are required")
	}
	req := models.Request{
		StartDate:           c.Start.UTC(),
		EndDate:             c.End.UTC(),
		Latitude:            c.Latitude,
		Longitude:           c.Longitude,
		RowLimit:            c.RowLimit,
		RidershipSource:     "socrata",
		WeatherSource:       "open-meteo",
		AllowPartialWeather: c.AllowPartialWeather,
	}
	if err := cacheMgr.Invalidate(req); err != nil {
		return err
	}
	fmt.Println("cache entry removed")
	return nil
}

func (c *queryCmd) Run(g *globals) error {
	st, db, err := openStore(g)
	if err != nil {
		return err
	}
	defer db.Close()

	f := store.Filter{
		Year:      c.Year,
		Month:     c.Month,
		DayOfWeek: c.DayOfWeek,
		RouteID:   c.Route,
		Start:     c.Start,
		End:       c.End,
		Limit:     c.Limit,
	}

	ctx := context.Background()
	total, err := st.CountMerged(ctx, f)
	if err != nil {
		return err
	}
	records, err := st.QueryMerged(ctx, f)
	if err != nil {
		return err
	}

	fmt.Printf("%d matching rows\n", total)
	for _, rec := range records {
		ridership := "-"
		if rec.Ridership.Valid {
			ridership = fmt.Sprintf("%d", rec.Ridership.Int64)
		}
		temp := "-"
		if rec.TemperatureF.Valid {
			temp = fmt.Sprintf("%.1fF", rec.TemperatureF.Float64)
		}
		fmt.Printf("%s  %-12s  riders=%-8s temp=%-8s dow=%d\n",
			rec.Timestamp.Format("2006-01-02 15:04"), rec.RouteID, ridership, temp, rec.DayOfWeek)
	}
	return nil
}

func (c *runsCmd) Run(g *globals) error {
	st, db, err := openStore(g)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := st.RecentRuns(context.Background(), c.Limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		rows := "-"
		if r.RowsMerged.Valid {
			rows = fmt.Sprintf("%d", r.RowsMerged.Int64)
		}
		detail := ""
		if r.ErrorMessage.Valid {
			detail = "  " + r.ErrorMessage.String
		}
		fmt.Printf("%s  %-9s  %s to %s  rows=%s%s\n",
			r.StartedAt.Format(time.RFC3339), r.Status,
			r.StartDate.Format("2006-01-02"), r.EndDate.Format("2006-01-02"), rows, detail)
	}
	return nil
}
