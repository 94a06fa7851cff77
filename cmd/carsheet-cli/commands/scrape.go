package commands

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"carsheet-backend/cmd/carsheet-cli/utils"
	"carsheet-backend/lib/configutil"
	"carsheet-backend/lib/scrapers/carsheet"
	"carsheet-backend/lib/serviceutil"
	"carsheet-backend/lib/xlsxutil"
	"carsheet-backend/services/listings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type Config struct {
	BaseUrl        string `json:"base_url"`
	UserAgent      string `json:"user_agent"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MinDelayMs     int    `json:"min_delay_ms"`
	MaxDelayMs     int    `json:"max_delay_ms"`
}

var scrapePages *int
var scrapeOut *string
var scrapeDedupe *bool
var scrapeKeepEmpty *bool

func init() {
	scrapePages = scrapeCmd.Flags().Int("pages", 0, "Largest page index to fetch, 0 means all pages.")
	scrapeOut = scrapeCmd.Flags().String("out", "", "Output .xlsx path, defaults to a timestamped name.")
	scrapeDedupe = scrapeCmd.Flags().Bool("dedupe", true, "Drop duplicate rows from the export.")
	scrapeKeepEmpty = scrapeCmd.Flags().Bool("keep-empty", false, "Keep rows with every cell blank.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--pages <n>] [--out <path/to/output.xlsx>]",
	Short: "Scrapes every listing page and writes the table to a spreadsheet.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil && !os.IsNotExist(err) {
			serviceutil.Fatal("failed to read config", err)
		}
		if cfg.BaseUrl == "" {
			cfg.BaseUrl = carsheet.DefaultBaseUrl
		}
		if cfg.MinDelayMs == 0 && cfg.MaxDelayMs == 0 {
			cfg.MinDelayMs = 1000
			cfg.MaxDelayMs = 3000
		}

		client, err := carsheet.NewClient(carsheet.ClientOptions{
			BaseUrl:   cfg.BaseUrl,
			UserAgent: cfg.UserAgent,
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			serviceutil.Fatal("failed to initialize carsheet client", err)
		}
		svc := listings.NewService(client, listings.Options{
			MinDelay: time.Duration(cfg.MinDelayMs) * time.Millisecond,
			MaxDelay: time.Duration(cfg.MaxDelayMs) * time.Millisecond,
		})

		slog.Info("scraping", "base_url", cfg.BaseUrl, "max_pages", *scrapePages)

		t1 := time.Now()
		session := svc.Run(cmd.Context(), listings.RunOptions{
			MaxPages: *scrapePages,
		})
		t2 := time.Now()

		if session.LastError != nil {
			slog.Warn(
				"scrape ended early, keeping partial results",
				"err", session.LastError,
			)
		}
		slog.Info(
			"scraping time",
			"seconds", t2.Sub(t1).Seconds(),
			"pages", session.PagesFetched,
			"entries", len(session.Entries),
		)

		printSummary(session)

		out := *scrapeOut
		if out == "" {
			out = listings.ExportFilename(time.Now())
		}
		err = exportFile(session, out, listings.ExportOptions{
			DropDuplicates: *scrapeDedupe,
			DropEmptyRows:  !*scrapeKeepEmpty,
		})
		if errors.Is(err, listings.ErrNoEntries) {
			slog.Warn("no entries to export, skipping spreadsheet")
			return
		}
		if err != nil {
			serviceutil.Fatal("failed to export spreadsheet", err)
		}
		slog.Info("wrote spreadsheet", "path", out)
	},
}

const previewRows = 15

func printSummary(session *listings.Session) {
	if len(session.Entries) == 0 {
		return
	}

	columns := session.Columns()
	preview := utils.NewTable()
	header := table.Row{}
	for _, column := range columns {
		header = append(header, column)
	}
	preview.AppendHeader(header)

	count := min(len(session.Entries), previewRows)
	for _, entry := range session.Entries[:count] {
		row := table.Row{}
		for _, column := range columns {
			row = append(row, entry.Field(column))
		}
		preview.AppendRow(row)
	}
	preview.Render()

	counts := utils.NewTable()
	counts.AppendHeader(table.Row{"Brand", "Listings"})
	for _, brand := range session.Brands() {
		n := 0
		for _, entry := range session.Entries {
			if entry.Brand == brand {
				n++
			}
		}
		counts.AppendRow(table.Row{brand, n})
	}
	counts.Render()
}

func exportFile(session *listings.Session, path string, opts listings.ExportOptions) error {
	t, err := session.Table(opts)
	if err != nil {
		return err
	}
	f, err := xlsxutil.Workbook(listings.ExportSheet, t)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}
