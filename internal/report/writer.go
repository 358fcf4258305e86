package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format selects an output encoding for WriteFile.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts a format name or falls back to the path's extension.
func ParseFormat(name, path string) (Format, error) {
	if name == "" {
		name = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	switch f := Format(strings.ToLower(name)); f {
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", name)
	}
}

// WriteFile writes the report to path in the given format.
func WriteFile(r *Report, path string, format Format) error {
	switch format {
	case FormatXLSX:
		return writeXLSX(r, path)
	case FormatJSON, FormatCSV:
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer f.Close()
		if format == FormatJSON {
			return WriteJSON(r, f)
		}
		return WriteCSV(r, f)
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

// WriteJSON emits the report as indented JSON.
func WriteJSON(r *Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

var csvHeader = []string{
	"company", "card_name", "url", "rating", "reviews_count",
	"answered_reviews", "response_time", "negative_reviews", "positive_reviews",
}

// WriteCSV flattens the card list into one row per card.
func WriteCSV(r *Report, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, card := range r.Cards {
		row := []string{
			r.CompanyName,
			card.Name,
			card.URL,
			formatRating(card.Rating),
			strconv.Itoa(card.ReviewsCount),
			strconv.Itoa(card.AnsweredReviews),
			card.ResponseTimeStr,
			strconv.Itoa(card.NegativeReviewsCount),
			strconv.Itoa(card.PositiveReviewsCount),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

const (
	summarySheet = "Summary"
	cardsSheet   = "Cards"
)

// writeXLSX produces a workbook with a summary sheet and a per-card sheet.
func writeXLSX(r *Report, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	if _, err := f.NewSheet(cardsSheet); err != nil {
		return fmt.Errorf("create cards sheet: %w", err)
	}

	summary := [][]any{
		{"Company", r.CompanyName},
		{"Report ID", r.ReportID.String()},
		{"Status", string(r.Status)},
	}
	if r.Stats != nil {
		summary = append(summary,
			[]any{"Cards found", r.Stats.CardsCount},
			[]any{"Total reviews", r.Stats.TotalReviews},
			[]any{"Answered reviews", r.Stats.AnsweredReviews},
			[]any{"Negative reviews", r.Stats.NegativeReviewsCount},
			[]any{"Positive reviews", r.Stats.PositiveReviewsCount},
		)
		if r.Stats.TotalRating != nil {
			summary = append(summary, []any{"Average rating", *r.Stats.TotalRating})
		}
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return err
	}

	cards := [][]any{{
		"Name", "URL", "Rating", "Reviews", "Answered",
		"Response time", "Negative", "Positive",
	}}
	for _, card := range r.Cards {
		cards = append(cards, []any{
			card.Name, card.URL, formatRating(card.Rating),
			card.ReviewsCount, card.AnsweredReviews, card.ResponseTimeStr,
			card.NegativeReviewsCount, card.PositiveReviewsCount,
		})
	}
	if err := writeRows(f, cardsSheet, cards); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return fmt.Errorf("cell coordinates: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}
	return nil
}

func formatRating(r *float64) string {
	if r == nil {
		return ""
	}
	return strconv.FormatFloat(*r, 'f', 1, 64)
}
