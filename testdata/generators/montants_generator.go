package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MontantsGenerator writes synthetic regional rent exports with the quirks
// of the real ones: title rows above a multi-row header, amount and index
// blocks repeating the years, identifiers written only on the first row of
// a group, subtotal rows and comma decimals.
type MontantsGenerator struct {
	FirstYear   int
	LastYear    int
	Cities      int
	MissingRate float64
	Layout      string

	rng *rand.Rand
}

var regions = []string{
	"rabat-sale-kenitra", "casablanca-settat", "fes-meknes", "marrakech-safi",
	"tanger-tetouan-al-hoceima", "oriental", "souss-massa", "beni-mellal-khenifra",
}

var cityNames = []string{
	"Rabat", "Salé", "Kénitra", "Témara", "Casablanca", "Mohammedia", "El Jadida",
	"Fès", "Meknès", "Marrakech", "Safi", "Tanger", "Tétouan", "Oujda", "Nador",
	"Agadir", "Inezgane", "Béni Mellal", "Khouribga", "Settat",
}

var housingTypes = []string{"Appartement", "Maison marocaine", "Villa"}

var scales = []string{"PET", "MOY", "GRD"}

func main() {
	var (
		outputDir   = flag.String("output-dir", "generated_montants", "Output directory for the regional files")
		count       = flag.Int("regions", 3, "Number of regional files to generate")
		cities      = flag.Int("cities", 3, "Agglomerations per region")
		firstYear   = flag.Int("first-year", 2001, "First year of the blocks")
		lastYear    = flag.Int("last-year", 2022, "Last year of the blocks")
		missingRate = flag.Float64("missing-rate", 0.05, "Share of cells written as '-'")
		layout      = flag.String("layout", "mixed", "Index block placement: separator, adjacent, no-header, mixed")
		seed        = flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible generation")
	)
	flag.Parse()

	if *count < 1 || *count > len(regions) {
		log.Fatalf("regions must be between 1 and %d", len(regions))
	}
	if *lastYear < *firstYear {
		log.Fatalf("last year %d is before first year %d", *lastYear, *firstYear)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	generator := &MontantsGenerator{
		FirstYear:   *firstYear,
		LastYear:    *lastYear,
		Cities:      *cities,
		MissingRate: *missingRate,
		Layout:      *layout,
		rng:         rand.New(rand.NewSource(*seed)),
	}

	layouts := []string{"separator", "adjacent", "no-header"}
	for i := 0; i < *count; i++ {
		fileLayout := generator.Layout
		if fileLayout == "mixed" {
			fileLayout = layouts[i%len(layouts)]
		}

		path := filepath.Join(*outputDir, fmt.Sprintf("montants-loyers-region-%s.csv", regions[i]))
		rows := generator.Generate(regions[i], fileLayout)
		if err := writeCSV(path, rows); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
		fmt.Printf("Generated %s (%s layout, %d rows)\n", path, fileLayout, len(rows))
	}
	fmt.Printf("Seed used: %d\n", *seed)
}

// Generate builds the rows of one regional file
func (g *MontantsGenerator) Generate(region, layout string) [][]string {
	years := g.LastYear - g.FirstYear + 1
	gap := 1
	if layout == "adjacent" {
		gap = 0
	}
	width := 3 + years + gap + years

	blank := func() []string { return make([]string, width) }

	var rows [][]string

	title := blank()
	title[0] = fmt.Sprintf("Montants moyens des loyers par m² - région %s", region)
	rows = append(rows, title, blank())

	if layout != "no-header" {
		labels := blank()
		labels[0], labels[1], labels[2] = "Agglomération", "Type d'habitat", "Envergure"
		labels[3] = "Montants (DH/m²)"
		labels[3+years+gap] = "Indices (base 100 en " + fmt.Sprint(g.FirstYear) + ")"
		rows = append(rows, labels)

		yearRow := blank()
		for i := 0; i < years; i++ {
			yearRow[3+i] = fmt.Sprint(g.FirstYear + i)
			yearRow[3+years+gap+i] = fmt.Sprint(g.FirstYear + i)
		}
		rows = append(rows, yearRow)
	}

	start := g.rng.Intn(len(cityNames))
	for c := 0; c < g.Cities; c++ {
		city := cityNames[(start+c)%len(cityNames)]
		for h, housing := range housingTypes {
			groupScales := scales
			if h == 0 {
				// the aggregate row only appears for apartments
				groupScales = append(append([]string{}, scales...), "VIL")
			}
			for s, scale := range groupScales {
				row := blank()
				if s == 0 {
					if h == 0 {
						row[0] = city
					}
					row[1] = housing
				}
				row[2] = scale
				g.fillSeries(row, years, gap, 40+float64(s)*15+float64(h)*20)
				rows = append(rows, row)
			}
		}

		total := blank()
		total[0], total[1] = "Total ville", housingTypes[0]
		g.fillSeries(total, years, gap, 60)
		rows = append(rows, total)
	}

	regionTotal := blank()
	regionTotal[0] = "Total région"
	g.fillSeries(regionTotal, years, gap, 55)
	rows = append(rows, regionTotal, blank())

	return rows
}

// fillSeries writes a growing amount series and its index relative to the
// first year
func (g *MontantsGenerator) fillSeries(row []string, years, gap int, base float64) {
	amount := decimal.NewFromFloat(base + g.rng.Float64()*10)
	first := amount

	for i := 0; i < years; i++ {
		if g.rng.Float64() >= g.MissingRate {
			row[3+i] = frenchNumber(amount.Round(1))
			index := amount.Div(first).Mul(decimal.NewFromInt(100)).Round(1)
			row[3+years+gap+i] = frenchNumber(index)
		} else {
			row[3+i] = "-"
			row[3+years+gap+i] = "-"
		}
		growth := decimal.NewFromFloat(1 + g.rng.Float64()*0.06)
		amount = amount.Mul(growth)
	}
}

// frenchNumber formats d with a comma decimal separator and spaces between
// thousands
func frenchNumber(d decimal.Decimal) string {
	text := d.StringFixed(1)
	integer, fraction, _ := strings.Cut(text, ".")

	var grouped strings.Builder
	for i, r := range integer {
		if i > 0 && (len(integer)-i)%3 == 0 {
			grouped.WriteByte(' ')
		}
		grouped.WriteRune(r)
	}

	if fraction == "0" {
		return grouped.String()
	}
	return grouped.String() + "," + fraction
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return file.Close()
}
