package main

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/lox/aqicast/internal/api"
	"github.com/lox/aqicast/internal/aqi"
	"github.com/lox/aqicast/internal/forecast"
	"github.com/lox/aqicast/internal/imagegen"
	"github.com/lox/aqicast/internal/pipeline"
	"github.com/lox/aqicast/internal/store"
)

const cardFilename = "og_card.png"

type CLI struct {
	Input      string `help:"CSV path or http(s)/ftp URL." default:"delhi_aqi.csv" env:"AQICAST_INPUT"`
	TimeColumn string `help:"Timestamp column name." default:"date" env:"AQICAST_TIME_COLUMN"`
	Target     string `help:"Field to forecast." default:"pm2_5" env:"AQICAST_TARGET"`
	HorizonEnd string `help:"Last forecast date (YYYY-MM-DD)." default:"2025-12-31" env:"AQICAST_HORIZON_END"`
	StaticDir  string `help:"Directory for rendered images." default:"static" env:"AQICAST_STATIC_DIR"`
	DB         string `help:"SQLite run archive path; empty disables it." default:"data/aqicast.db" env:"AQICAST_DB"`
	Addr       string `help:"HTTP listen address." default:":5000" env:"AQICAST_ADDR"`
	Title      string `help:"Page and plot title." default:"Delhi PM2.5 Forecast" env:"AQICAST_TITLE"`

	Yearly bool `help:"Fit yearly seasonality." default:"true" negatable:"" env:"AQICAST_YEARLY"`
	Weekly bool `help:"Fit weekly seasonality." default:"true" negatable:"" env:"AQICAST_WEEKLY"`
	Daily  bool `help:"Fit daily seasonality." default:"false" negatable:"" env:"AQICAST_DAILY"`

	Banner            bool `help:"Generate a page banner when OPENAI_API_KEY is set." default:"true" negatable:"" env:"AQICAST_BANNER"`
	SnapshotRetention int  `help:"Days to keep unreferenced input snapshots." default:"90" env:"AQICAST_SNAPSHOT_RETENTION"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("warning: load .env: %v", err)
	}

	var cli CLI
	kong.Parse(&cli,
		kong.Name("aqicast"),
		kong.Description("Forecast daily PM2.5 and serve the results."),
	)

	horizonEnd, err := time.Parse("2006-01-02", cli.HorizonEnd)
	if err != nil {
		log.Fatalf("parse --horizon-end: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		st          *store.Store
		runArchive  pipeline.Archive
		readArchive api.RunArchive
	)
	if cli.DB != "" {
		st = openStore(cli.DB)
		runArchive, readArchive = st, st
		if n, err := st.CleanupSnapshots(cli.SnapshotRetention); err != nil {
			log.Printf("warning: cleanup snapshots: %v", err)
		} else if n > 0 {
			log.Printf("removed %d old input snapshots", n)
		}
	} else {
		log.Println("run archive disabled")
	}

	opts := forecast.DefaultOptions()
	opts.YearlySeasonality = cli.Yearly
	opts.WeeklySeasonality = cli.Weekly
	opts.DailySeasonality = cli.Daily

	res, err := pipeline.Run(ctx, pipeline.Config{
		Input:      cli.Input,
		TimeColumn: cli.TimeColumn,
		Target:     cli.Target,
		HorizonEnd: horizonEnd,
		StaticDir:  cli.StaticDir,
		Title:      cli.Title,
		Options:    opts,
	}, runArchive)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	server := api.NewServer(res, readArchive, cli.Addr, cli.StaticDir)

	var banner []byte
	if cli.Banner {
		banner = ensureBanner(ctx, cli.StaticDir, res.Outlook)
		if banner != nil {
			server.SetBanner(imagegen.Filename(res.Outlook))
		}
	}

	card, err := imagegen.RenderCard(banner, imagegen.CardData{
		Title:    res.Title,
		Date:     res.Headline.Date,
		PM25:     res.Headline.Predicted,
		Category: aqi.Categorize(res.Headline.Predicted),
	})
	if err != nil {
		log.Printf("warning: render preview card: %v", err)
	} else if err := os.WriteFile(filepath.Join(cli.StaticDir, cardFilename), card, 0644); err != nil {
		log.Printf("warning: write preview card: %v", err)
	} else {
		server.SetCard(cardFilename)
	}

	if err := server.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func openStore(path string) *store.Store {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Fatalf("create database dir: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("database migrated")
	return st
}

// ensureBanner returns the cached or freshly generated banner, or nil.
func ensureBanner(ctx context.Context, dir string, outlook aqi.Category) []byte {
	var src imagegen.Source
	if gen, err := imagegen.NewGenerator(); err != nil {
		log.Printf("banner generation disabled: %v", err)
	} else {
		src = gen
	}

	genCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	data, err := imagegen.NewCache(dir).Ensure(genCtx, src, outlook)
	if err != nil {
		log.Printf("banner unavailable: %v", err)
		return nil
	}
	return data
}
