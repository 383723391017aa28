package scraper

import (
	"bytes"
	"fmt"
	"strings"

	"golang-rent-normalizer/internal/models"
	"golang-rent-normalizer/internal/normalizer"
	"golang-rent-normalizer/pkg/errors"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// Dataset selects which array of the page payload is extracted
type Dataset string

const (
	DatasetProvinces Dataset = "provinces"
	DatasetQuartiers Dataset = "quartiers"
)

// IsValid reports whether the dataset is known
func (d Dataset) IsValid() bool {
	return d == DatasetProvinces || d == DatasetQuartiers
}

// Path returns the gjson path of the dataset inside __NEXT_DATA__
func (d Dataset) Path() string {
	if d == DatasetQuartiers {
		return "props.pageProps.quartiersSSR"
	}
	return "props.pageProps.provincesSSR"
}

func (d Dataset) nameKey() string {
	if d == DatasetQuartiers {
		return "quartier"
	}
	return "province"
}

// Source names where the listings of a page were found
type Source string

const (
	SourceNextData Source = "next_data"
	SourceTable    Source = "html_table"
)

const (
	priceTableSelector = "table.AveragePricesTable_price__table__dZRIO"
	priceItemSelector  = "span.AveragePricesTable_price__table__item__uar_X"
)

var currencyCleaner = strings.NewReplacer("MAD", "", "DH", "")

// ParsePage extracts the listings of a downloaded page. The __NEXT_DATA__
// payload is preferred; without it the legacy price table is read.
// Entries without a name or without any price are skipped.
func ParsePage(html []byte, dataset Dataset) ([]*models.PriceListing, Source, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, "", errors.ParseError(errors.CodeInvalidFormat, "page", 0, err)
	}

	if script := doc.Find("script#__NEXT_DATA__").First(); script.Length() > 0 {
		listings, err := ParseNextData([]byte(script.Text()), dataset)
		return listings, SourceNextData, err
	}

	listings, err := ParseTable(doc)
	return listings, SourceTable, err
}

// ParseNextData extracts the dataset array from a __NEXT_DATA__ JSON payload
func ParseNextData(payload []byte, dataset Dataset) ([]*models.PriceListing, error) {
	if !gjson.ValidBytes(payload) {
		return nil, errors.ParseError(errors.CodeInvalidFormat, "__NEXT_DATA__", 0, fmt.Errorf("payload is not valid JSON"))
	}

	entries := gjson.GetBytes(payload, dataset.Path())
	if !entries.Exists() || !entries.IsArray() {
		return nil, errors.New(errors.CategoryNetwork, errors.CodePayloadNotFound, "dataset array not found").
			WithContext("path", dataset.Path())
	}

	var listings []*models.PriceListing
	entries.ForEach(func(_, entry gjson.Result) bool {
		listing := &models.PriceListing{
			Name:                strings.TrimSpace(entry.Get(dataset.nameKey()).String()),
			AvgPriceApartment:   normalizer.NormalizeCell(jsonCell(entry.Get("prix_appartement"))),
			AvgPriceVilla:       normalizer.NormalizeCell(jsonCell(entry.Get("prix_villa"))),
			Region:              entry.Get("region").String(),
			LastUpdated:         entry.Get("last_update").String(),
			ConfidenceApartment: entry.Get("indice_confiance_appartement").String(),
			ConfidenceVilla:     entry.Get("indice_confiance_villa").String(),
		}
		if listing.Validate() == nil {
			listings = append(listings, listing)
		}
		return true
	})
	return listings, nil
}

// jsonCell hands a JSON value to the cell normalizer: numbers as numbers,
// strings as text, anything else as an empty cell.
func jsonCell(r gjson.Result) any {
	switch r.Type {
	case gjson.Number:
		return r.Float()
	case gjson.String:
		return r.String()
	default:
		return nil
	}
}

// ParseTable reads the legacy HTML price table: the city is the link text of
// the first cell, the apartment and villa prices follow in the item spans.
func ParseTable(doc *goquery.Document) ([]*models.PriceListing, error) {
	table := doc.Find(priceTableSelector).First()
	if table.Length() == 0 {
		return nil, errors.New(errors.CategoryNetwork, errors.CodePayloadNotFound, "neither __NEXT_DATA__ nor the price table is present")
	}

	var listings []*models.PriceListing
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		var name string
		var prices []models.Value
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			if link := td.Find("a").First(); link.Length() > 0 {
				name = strings.TrimSpace(link.Text())
				return
			}
			text := td.Text()
			if item := td.Find(priceItemSelector).First(); item.Length() > 0 {
				text = item.Text()
			}
			prices = append(prices, normalizer.NormalizeCell(currencyCleaner.Replace(text)))
		})

		listing := &models.PriceListing{Name: name, AvgPriceApartment: models.Missing(), AvgPriceVilla: models.Missing()}
		if len(prices) > 0 {
			listing.AvgPriceApartment = prices[0]
		}
		if len(prices) > 1 {
			listing.AvgPriceVilla = prices[1]
		}
		if listing.Validate() == nil {
			listings = append(listings, listing)
		}
	})
	return listings, nil
}
