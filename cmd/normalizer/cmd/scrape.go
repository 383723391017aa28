package cmd

import (
	"fmt"

	"golang-rent-normalizer/cmd/normalizer/config"
	"golang-rent-normalizer/internal/exporter"
	"golang-rent-normalizer/internal/scraper"
	"golang-rent-normalizer/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape average real-estate prices per square meter",
	Long: `Scrape downloads the agenz.ma price pages and writes the average price per
square meter of apartments and villas, with region, last update and
confidence indices, as a CSV file.

The provinces dataset is read from the national page; the quartiers dataset
is read from a city or district page given with --url.

Examples:
  normalizer scrape
  normalizer scrape --dataset quartiers --url https://agenz.ma/fr/prix-immobilier-maroc/rabat-sale-kenitra/temara
  normalizer scrape --url URL1 --url URL2 --rate 0.5 --output prices.csv`,

	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	flags := scrapeCmd.Flags()
	flags.StringSliceP("url", "u", []string{scraper.DefaultURL}, "page URLs to scrape (repeatable)")
	flags.StringP("dataset", "d", string(scraper.DatasetProvinces), "dataset to extract: provinces, quartiers")
	flags.StringP("output", "o", "", "output CSV path (default depends on the dataset)")
	flags.Duration("timeout", 0, "HTTP timeout per page (default 30s)")
	flags.Float64("rate", 0, "maximum requests per second (default 1)")

	bindFlags(scrapeCmd, "scrape.", nil)
}

func runScrape(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger()

	scraperConfig, err := config.CreateScraperConfig(
		viper.GetStringSlice("scrape.url"),
		viper.GetString("scrape.dataset"),
		viper.GetDuration("scrape.timeout"),
		viper.GetFloat64("scrape.rate"),
	)
	if err != nil {
		return err
	}

	s, err := scraper.NewScraper(scraperConfig, log)
	if err != nil {
		return err
	}

	result, err := s.ScrapeAll(cmd.Context())
	if err != nil {
		return err
	}

	output := viper.GetString("scrape.output")
	if output == "" {
		output = config.ScrapeOutputPath(scraperConfig.Dataset)
	}
	if err := exporter.NewCSVWriter(true, log).WriteListings(output, result.Listings); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scraped %d listings from %d of %d pages into %s\n",
		len(result.Listings), result.Pages, len(scraperConfig.URLs), output)
	for _, f := range result.Failures {
		fmt.Fprintf(out, "Skipped %s: %s\n", f.URL, f.Error.Message)
	}
	return nil
}
