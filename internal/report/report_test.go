package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func ratingPtr(v float64) *float64 { return &v }

func sampleCards() []CompanyCard {
	return []CompanyCard{
		{
			Name:                 "Acme Central",
			URL:                  "https://2gis.ru/firm/1",
			Rating:               ratingPtr(4.5),
			ReviewsCount:         10,
			AnsweredReviews:      8,
			ResponseTimeStr:      "1 week",
			NegativeReviewsCount: 2,
			PositiveReviewsCount: 8,
		},
		{
			Name:                 "Acme North",
			URL:                  "https://2gis.ru/firm/2",
			Rating:               ratingPtr(3.5),
			ReviewsCount:         4,
			AnsweredReviews:      1,
			NegativeReviewsCount: 3,
			PositiveReviewsCount: 1,
		},
	}
}

func TestNewReportStartsPending(t *testing.T) {
	r := New("Acme")
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, "Acme", r.CompanyName)
	assert.NotEmpty(t, r.ReportID)
	assert.NotNil(t, r.Cards)
}

func TestCompleteAggregates(t *testing.T) {
	r := New("Acme")
	r.Complete(sampleCards())

	assert.Equal(t, StatusCompleted, r.Status)
	require.NotNil(t, r.Stats)
	assert.Equal(t, 2, r.Stats.CardsCount)
	assert.Equal(t, 14, r.Stats.TotalReviews)
	assert.Equal(t, 9, r.Stats.AnsweredReviews)
	assert.Equal(t, 5, r.Stats.NegativeReviewsCount)
	assert.Equal(t, 9, r.Stats.PositiveReviewsCount)
	require.NotNil(t, r.Stats.TotalRating)
	assert.InDelta(t, 4.0, *r.Stats.TotalRating, 0.001)
}

func TestCompleteClearsEarlierFailure(t *testing.T) {
	r := New("Acme")
	r.Fail("chrome went away")
	assert.Equal(t, StatusError, r.Status)

	r.Complete(nil)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Empty(t, r.ErrorMessage)
	assert.NotNil(t, r.Cards)
}

func TestAggregateWithoutRatings(t *testing.T) {
	stats := Aggregate([]CompanyCard{{Name: "A", ReviewsCount: 3}})
	assert.Equal(t, 1, stats.CardsCount)
	assert.Equal(t, 3, stats.TotalReviews)
	assert.Nil(t, stats.TotalRating)
}

func TestWriteJSONUsesWireNames(t *testing.T) {
	r := New("Acme")
	r.Complete(sampleCards())

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(r, &buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "completed", decoded["status"])
	assert.Equal(t, "Acme", decoded["company_name"])
	assert.Contains(t, decoded, "report_id")
	assert.Contains(t, decoded, "gis_stats")
	cards, ok := decoded["gis_cards"].([]any)
	require.True(t, ok)
	assert.Len(t, cards, 2)
}

func TestWriteCSVFlattensCards(t *testing.T) {
	r := New("Acme")
	r.Complete(sampleCards())

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(r, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		"Acme", "Acme Central", "https://2gis.ru/firm/1", "4.5",
		"10", "8", "1 week", "2", "8",
	}, rows[1])
}

func TestWriteXLSXRoundTrip(t *testing.T) {
	r := New("Acme")
	r.Complete(sampleCards())

	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteFile(r, path, FormatXLSX))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Summary", "Cards"}, f.GetSheetList())

	name, err := f.GetCellValue("Cards", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Acme Central", name)

	company, err := f.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", company)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("json", "out.bin")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("", "report.xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = ParseFormat("", "report.txt")
	assert.Error(t, err)
}
