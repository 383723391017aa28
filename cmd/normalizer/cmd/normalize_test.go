package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang-rent-normalizer/internal/exporter"
	"golang-rent-normalizer/pkg/errors"
	"golang-rent-normalizer/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const regionFile = `Montants moyens des loyers,,,,,,,,,
Agglomération,Type d'habitat,Envergure,Montants,,,,Indices,,
,,,2001,2002,2003,,2001,2002,2003
%s,Appartement,PET,1 200,1 250,1 300,,100,"104,2","108,3"
,,MOY,1 500,1 550,1 600,,100,"103,3","106,7"
,,GRD,2 000,2 100,2 200,,100,105,110
Total ville,Appartement,,4 700,4 900,5 100,,,,
`

func writeRegion(t *testing.T, dir, name, agglomeration string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(regionFile, agglomeration)), 0644))
	return path
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := filepath.Join(tmpDir, "montants-rabat.csv")
	require.NoError(t, os.WriteFile(validFile, []byte("test"), 0644))

	tests := []struct {
		name        string
		filePath    string
		expectError bool
	}{
		{"valid file", validFile, false},
		{"empty path", "", true},
		{"non-existent file", "/non/existent/file.csv", true},
		{"directory instead of file", tmpDir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "input file")
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCleanedFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b_cleaned.csv", "a_cleaned.csv", exporter.CombinedFileName, "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	files, err := cleanedFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a_cleaned.csv"), filepath.Join(dir, "b_cleaned.csv")}, files)
}

func TestNormalizeAndCombineCommands(t *testing.T) {
	dir := t.TempDir()
	writeRegion(t, dir, "montants-rabat.csv", "Rabat")
	writeRegion(t, dir, "montants-sale.csv", "Salé")

	output, err := executeCommand(t, "normalize", "--input-dir", dir, "--report-format", "json")
	require.NoError(t, err)

	var report struct {
		Summary struct {
			ProcessedFiles  int `json:"processed_files"`
			CombinedRecords int `json:"combined_records"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &report), output)
	assert.Equal(t, 2, report.Summary.ProcessedFiles)
	assert.Equal(t, 6, report.Summary.CombinedRecords)

	outDir := filepath.Join(dir, exporter.DefaultOutputDirName)
	assert.FileExists(t, filepath.Join(outDir, "montants-rabat_cleaned.csv"))
	assert.FileExists(t, filepath.Join(outDir, "montants-sale_cleaned.csv"))
	assert.FileExists(t, filepath.Join(outDir, exporter.CombinedFileName))

	combined := filepath.Join(dir, "recombined.csv")
	output, err = executeCommand(t, "combine", "--input-dir", outDir, "--output", combined)
	require.NoError(t, err)
	assert.Contains(t, output, "Combined 2 of 2 cleaned tables")
	assert.Contains(t, output, "Records: 6 (duplicates removed: 0)")

	data, err := os.ReadFile(combined)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 7)
}

func TestNormalizeCommand_InvalidFlags(t *testing.T) {
	_, err := executeCommand(t, "normalize", "--input-dir", "/non/existent/dir", "--report-format", "console")
	assert.Error(t, err)

	_, err = executeCommand(t, "normalize", "--input-dir", t.TempDir(), "--report-format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid report format")
}

func TestNormalizeCommand_NoInputFiles(t *testing.T) {
	_, err := executeCommand(t, "normalize", "--input-dir", t.TempDir(), "--report-format", "console")
	assert.True(t, errors.HasCode(err, errors.CodeNoInputFiles))
}

func TestVersionCommand(t *testing.T) {
	output, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "normalizer dev")
	assert.Contains(t, output, "commit: unknown")
}

func TestCLIErrorHandler(t *testing.T) {
	newHandler := func(out *bytes.Buffer) *CLIErrorHandler {
		return &CLIErrorHandler{logger: logger.GetGlobalLogger(), out: out}
	}

	var out bytes.Buffer
	assert.Equal(t, 0, newHandler(&out).HandleError(nil))

	err := errors.PipelineError(errors.CodeNoInputFiles, "normalize", nil).WithContext("input_dir", "/data")
	assert.Equal(t, 5, newHandler(&out).HandleError(err))
	assert.Contains(t, out.String(), "no input files found for normalize")
	assert.Contains(t, out.String(), "input_dir: /data")
	assert.Contains(t, out.String(), "Suggestion: check the input directory")

	out.Reset()
	netErr := errors.NetworkError(errors.CodeUnexpectedStatus, "https://agenz.ma", nil)
	assert.Equal(t, 6, newHandler(&out).HandleError(netErr))
	assert.Contains(t, out.String(), "Network error help")

	out.Reset()
	_, statErr := os.Stat("/non/existent/file.csv")
	assert.Equal(t, 2, newHandler(&out).HandleError(statErr))

	out.Reset()
	assert.Equal(t, 1, newHandler(&out).HandleError(fmt.Errorf("invalid report format 'xml'")))
	assert.Contains(t, out.String(), "--verbose")
}
