package cmd

import (
	"fmt"
	"path/filepath"
	"sort"

	"golang-rent-normalizer/cmd/normalizer/config"
	"golang-rent-normalizer/internal/exporter"
	"golang-rent-normalizer/internal/pipeline"
	"golang-rent-normalizer/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// combinedPattern matches the cleaned tables written by normalize
const combinedPattern = "*" + exporter.CleanedSuffix

// combineCmd represents the combine command
var combineCmd = &cobra.Command{
	Use:   "combine [cleaned files...]",
	Short: "Combine previously cleaned tables into one dataset",
	Long: `Combine reads cleaned tables (the *_cleaned.csv files written by normalize),
concatenates them and removes duplicate records, keeping the first occurrence.
Files are combined in name order. The combined file itself is never read back.

Examples:
  normalizer combine --input-dir ./data/cleaned_data_revised
  normalizer combine a_cleaned.csv b_cleaned.csv --output combined.csv`,

	RunE: runCombine,
}

func init() {
	rootCmd.AddCommand(combineCmd)

	flags := combineCmd.Flags()
	flags.StringP("input-dir", "i", ".", "directory holding the cleaned tables")
	flags.StringP("output", "o", "", "combined file path (default: <input-dir>/"+exporter.CombinedFileName+")")
	flags.Bool("no-bom", false, "write the combined file without a UTF-8 byte order mark")

	bindFlags(combineCmd, "combine.", nil)
}

// cleanedFiles lists the cleaned tables of dir, leaving out the combined file
func cleanedFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, combinedPattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		if filepath.Base(m) == exporter.CombinedFileName {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

func runCombine(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("cli")
	inputDir := viper.GetString("combine.input-dir")

	files := args
	if len(files) == 0 {
		found, err := cleanedFiles(inputDir)
		if err != nil {
			return err
		}
		files = found
	}
	if len(files) == 0 {
		return fmt.Errorf("no cleaned tables (%s) found in %s", combinedPattern, inputDir)
	}

	output := viper.GetString("combine.output")
	if output == "" {
		base := inputDir
		if len(args) > 0 && !cmd.Flags().Changed("input-dir") {
			base = filepath.Dir(args[0])
		}
		output = filepath.Join(base, exporter.CombinedFileName)
	}

	pipelineConfig, err := config.CreatePipelineConfig(config.PipelineOptions{
		NoBOM: viper.GetBool("combine.no-bom"),
	})
	if err != nil {
		return err
	}
	service, err := pipeline.NewService(pipelineConfig, nil, log)
	if err != nil {
		return err
	}

	result, err := service.CombineCleaned(cmd.Context(), files, output)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Combined %d of %d cleaned tables into %s\n", result.Sources, len(files), result.OutputPath)
	fmt.Fprintf(out, "Records: %d (duplicates removed: %d)\n", result.Combined.Len(), result.Combined.Duplicates)
	for _, f := range result.Failures {
		fmt.Fprintf(out, "Skipped %s: %s\n", f.Path, f.Error.Message)
	}
	return nil
}
