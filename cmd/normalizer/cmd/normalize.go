package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang-rent-normalizer/cmd/normalizer/config"
	"golang-rent-normalizer/internal/parsers"
	"golang-rent-normalizer/internal/pipeline"
	"golang-rent-normalizer/internal/reporter"
	"golang-rent-normalizer/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// normalizeCmd represents the normalize command
var normalizeCmd = &cobra.Command{
	Use:   "normalize [files...]",
	Short: "Normalize regional rent tables into the canonical layout",
	Long: `Normalize reads every regional export matching the pattern in the input
directory (or the files given as arguments), locates the year header, maps the
amount and index columns, drops header and subtotal rows, and writes:

- one <name>_cleaned.csv per input file
- COMBINED_montants_loyers_cleaned.csv with the deduplicated records

into the output directory (default: <input-dir>/cleaned_data_revised).
A file whose header cannot be located is still processed with generic column
names; a file that cannot be read is skipped and listed in the report.

Examples:
  # Default layout
  normalizer normalize --input-dir ./data

  # Explicit files and output directory
  normalizer normalize montants-rabat.csv montants-fes.csv --output-dir ./out

  # Files saved by older spreadsheet tools
  normalizer normalize --input-dir ./data --encoding windows-1252

  # Additional workbook and database, JSON report
  normalizer normalize --input-dir ./data --xlsx loyers.xlsx --sqlite loyers.db \
    --report-format json --report-file report.json`,

	PreRunE: validateNormalizeFlags,
	RunE:    runNormalize,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)

	flags := normalizeCmd.Flags()

	// Input flags
	flags.StringP("input-dir", "i", ".", "directory holding the regional exports")
	flags.StringP("pattern", "p", parsers.DefaultInputPattern, "glob pattern of the input files")
	flags.String("encoding", parsers.EncodingUTF8, "input encoding: utf-8, windows-1252, iso-8859-1")
	flags.String("delimiter", ",", "input field delimiter")

	// Output flags
	flags.StringP("output-dir", "o", "", "output directory (default: <input-dir>/cleaned_data_revised)")
	flags.Bool("no-bom", false, "write output files without a UTF-8 byte order mark")
	flags.Bool("skip-cleaned", false, "do not write the per-file cleaned tables")
	flags.String("xlsx", "", "also write the combined table to this workbook")
	flags.String("sqlite", "", "also store the combined table in this SQLite database")

	// Inference flags
	flags.Int("max-scan-rows", 0, "rows scanned for the year header (default 10)")
	flags.Int("fallback-start-row", 0, "data start row when no header is found (default 5)")
	flags.Int("first-year", 0, "first canonical year (default 2001)")
	flags.Int("last-year", 0, "last canonical year (default 2022)")

	// Processing and report flags
	flags.IntP("workers", "w", 0, "files processed concurrently (default 4)")
	flags.Bool("progress", false, "log progress while processing")
	flags.StringP("report-format", "f", "console", "report format: console, json, csv")
	flags.String("report-file", "", "report file path (default: stdout)")

	// Bind flags to viper; year bounds share their keys with the config file
	bindFlags(normalizeCmd, "", map[string]string{
		"first-year": "years.first",
		"last-year":  "years.last",
	})
}

// bindFlags binds every local flag of cmd to viper under prefix plus its
// name, or under its alias
func bindFlags(cmd *cobra.Command, prefix string, aliases map[string]string) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key := prefix + f.Name
		if alias, ok := aliases[f.Name]; ok {
			key = alias
		}
		viper.BindPFlag(key, f)
	})
}

func validateNormalizeFlags(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		for i, file := range args {
			if err := validateFileExists(file, fmt.Sprintf("input file %d", i+1)); err != nil {
				return err
			}
		}
	} else {
		inputDir := viper.GetString("input-dir")
		info, err := os.Stat(inputDir)
		if err != nil {
			return fmt.Errorf("input directory is not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("input directory is a file: %s", inputDir)
		}
	}

	format := viper.GetString("report-format")
	if !reporter.OutputFormat(format).IsValid() {
		return fmt.Errorf("invalid report format '%s'. Valid formats: console, json, csv", format)
	}

	if reportFile := viper.GetString("report-file"); reportFile != "" {
		dir := filepath.Dir(reportFile)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return fmt.Errorf("report directory does not exist: %s", dir)
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}
	return nil
}

// pipelineOptions collects the normalize settings from viper
func pipelineOptions() config.PipelineOptions {
	return config.PipelineOptions{
		MaxScanRows:      viper.GetInt("max-scan-rows"),
		FallbackStartRow: viper.GetInt("fallback-start-row"),
		FirstYear:        viper.GetInt("years.first"),
		LastYear:         viper.GetInt("years.last"),
		Workers:          viper.GetInt("workers"),
		Encoding:         viper.GetString("encoding"),
		Delimiter:        viper.GetString("delimiter"),
		NoBOM:            viper.GetBool("no-bom"),
		SkipCleaned:      viper.GetBool("skip-cleaned"),
		XLSXPath:         viper.GetString("xlsx"),
		SQLitePath:       viper.GetString("sqlite"),
		Progress:         viper.GetBool("progress"),
	}
}

func runNormalize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger.WithComponent("cli")

	pipelineConfig, err := config.CreatePipelineConfig(pipelineOptions())
	if err != nil {
		return err
	}
	markers, err := config.CreateMarkers(viper.GetViper())
	if err != nil {
		return err
	}
	reportConfig := config.CreateReportConfig(viper.GetString("report-format"))
	if err := config.ValidateConfig(pipelineConfig, markers, reportConfig); err != nil {
		return err
	}

	service, err := pipeline.NewService(pipelineConfig, markers, log)
	if err != nil {
		return err
	}

	request := &pipeline.RunRequest{
		InputDir:  viper.GetString("input-dir"),
		Pattern:   viper.GetString("pattern"),
		Files:     args,
		OutputDir: viper.GetString("output-dir"),
	}
	if len(args) > 0 && !cmd.Flags().Changed("input-dir") {
		request.InputDir = ""
	}

	log.WithFields(logger.Fields{
		"input_dir":  request.InputDir,
		"pattern":    request.Pattern,
		"files":      len(args),
		"output_dir": request.ResolveOutputDir(),
	}).Debug("Starting normalization")

	result, runErr := service.Run(ctx, request)
	if result != nil {
		if err := writeReport(cmd, result, reportConfig); err != nil {
			log.WithError(err).Error("Failed to write report")
			if runErr == nil {
				return err
			}
		}
	}
	return runErr
}

func writeReport(cmd *cobra.Command, result *pipeline.RunResult, reportConfig *reporter.ReportConfig) error {
	generator, err := reporter.NewSafeReportGenerator(reportConfig, logger.GetGlobalLogger())
	if err != nil {
		return err
	}

	var output io.Writer = cmd.OutOrStdout()
	if reportFile := viper.GetString("report-file"); reportFile != "" {
		file, err := os.Create(reportFile)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer file.Close()
		output = file
	}

	return generator.GenerateReportSafely(result, output)
}
