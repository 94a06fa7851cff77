package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"carsheet-backend/lib/configutil"
	"carsheet-backend/lib/scrapers/carsheet"
	"carsheet-backend/lib/serviceutil"
	"carsheet-backend/services/dashboard"
	"carsheet-backend/services/listings"
)

type ScraperConfig struct {
	BaseUrl        string `json:"base_url"`
	UserAgent      string `json:"user_agent"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MinDelayMs     int    `json:"min_delay_ms"`
	MaxDelayMs     int    `json:"max_delay_ms"`
	MaxPages       int    `json:"max_pages"`
}

type Config struct {
	Port    int           `json:"port"`
	Scraper ScraperConfig `json:"scraper"`
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.Scraper.BaseUrl == "" {
		c.Scraper.BaseUrl = carsheet.DefaultBaseUrl
	}
	if c.Scraper.MinDelayMs == 0 && c.Scraper.MaxDelayMs == 0 {
		c.Scraper.MinDelayMs = 1000
		c.Scraper.MaxDelayMs = 3000
	}
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	initialScrape := flag.Bool("scrape", false, "Trigger scraping immediately on run.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	InitTelemetry(ctx, *verbose)

	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("read config", err)
	}
	cfg.applyDefaults()

	client, err := carsheet.NewClient(carsheet.ClientOptions{
		BaseUrl:   cfg.Scraper.BaseUrl,
		UserAgent: cfg.Scraper.UserAgent,
		Timeout:   time.Duration(cfg.Scraper.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		serviceutil.Fatal("init carsheet client", err)
	}
	svc := listings.NewService(client, listings.Options{
		MinDelay: time.Duration(cfg.Scraper.MinDelayMs) * time.Millisecond,
		MaxDelay: time.Duration(cfg.Scraper.MaxDelayMs) * time.Millisecond,
	})
	api := dashboard.NewService(ctx, svc, cfg.Scraper.MaxPages)

	mux := http.NewServeMux()
	api.Register(mux)

	if *initialScrape {
		go svc.Run(ctx, listings.RunOptions{MaxPages: cfg.Scraper.MaxPages})
	}

	go serviceutil.StartHttpServer(cfg.Port, mux)
	<-ctx.Done()
}
