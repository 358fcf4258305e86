// Package report holds the scan result model and its output writers.
package report

import (
	"github.com/google/uuid"
)

// Status tracks a report through its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Review is a single customer review scraped from a company card.
type Review struct {
	Text            string `json:"text" yaml:"text"`
	Rating          int    `json:"rating" yaml:"rating"`
	Date            string `json:"date" yaml:"date"`
	Responded       bool   `json:"responded" yaml:"responded"`
	ResponseText    string `json:"response_text,omitempty" yaml:"responseText,omitempty"`
	ResponseDate    string `json:"response_date,omitempty" yaml:"responseDate,omitempty"`
	ResponseTimeStr string `json:"response_time_str,omitempty" yaml:"responseTimeStr,omitempty"`
}

// CompanyCard is one listing-site card for the company, with its review feed.
type CompanyCard struct {
	Name                 string   `json:"name" yaml:"name"`
	URL                  string   `json:"url" yaml:"url"`
	Rating               *float64 `json:"rating,omitempty" yaml:"rating,omitempty"`
	ReviewsCount         int      `json:"reviews_count" yaml:"reviewsCount"`
	AnsweredReviews      int      `json:"answered_reviews" yaml:"answeredReviews"`
	ResponseTimeStr      string   `json:"response_time_str,omitempty" yaml:"responseTimeStr,omitempty"`
	NegativeReviewsCount int      `json:"negative_reviews_count" yaml:"negativeReviewsCount"`
	PositiveReviewsCount int      `json:"positive_reviews_count" yaml:"positiveReviewsCount"`
	Reviews              []Review `json:"reviews" yaml:"reviews"`
}

// PlatformStats aggregates every card found on one platform.
type PlatformStats struct {
	CardsCount            int      `json:"cards_count" yaml:"cardsCount"`
	TotalRating           *float64 `json:"total_rating,omitempty" yaml:"totalRating,omitempty"`
	TotalReviews          int      `json:"total_reviews" yaml:"totalReviews"`
	AnsweredReviews       int      `json:"answered_reviews" yaml:"answeredReviews"`
	AvgResponseTimeDays   *int     `json:"avg_response_time_days,omitempty" yaml:"avgResponseTimeDays,omitempty"`
	AvgResponseTimeMonths *int     `json:"avg_response_time_months,omitempty" yaml:"avgResponseTimeMonths,omitempty"`
	NegativeReviewsCount  int      `json:"negative_reviews_count" yaml:"negativeReviewsCount"`
	PositiveReviewsCount  int      `json:"positive_reviews_count" yaml:"positiveReviewsCount"`
}

// Report is the full scan result for one company.
type Report struct {
	ReportID     uuid.UUID `json:"report_id" yaml:"reportId"`
	CompanyName  string    `json:"company_name" yaml:"companyName"`
	Status       Status    `json:"status" yaml:"status"`
	ErrorMessage string    `json:"error_message,omitempty" yaml:"errorMessage,omitempty"`

	Stats *PlatformStats `json:"gis_stats,omitempty" yaml:"gisStats,omitempty"`
	Cards []CompanyCard  `json:"gis_cards" yaml:"gisCards"`
}

// New allocates a pending report with a fresh id.
func New(companyName string) *Report {
	return &Report{
		ReportID:    uuid.New(),
		CompanyName: companyName,
		Status:      StatusPending,
		Cards:       []CompanyCard{},
	}
}

// Fail marks the report failed with the given message.
func (r *Report) Fail(message string) {
	r.Status = StatusError
	r.ErrorMessage = message
}

// Complete attaches the collected cards, recomputes the aggregate stats and
// marks the report completed.
func (r *Report) Complete(cards []CompanyCard) {
	if cards == nil {
		cards = []CompanyCard{}
	}
	r.Cards = cards
	r.Stats = Aggregate(cards)
	r.Status = StatusCompleted
	r.ErrorMessage = ""
}

// Aggregate rolls a card list up into platform stats. The total rating is the
// mean over cards that carry one; it is nil when no card does.
func Aggregate(cards []CompanyCard) *PlatformStats {
	stats := &PlatformStats{CardsCount: len(cards)}

	var ratingSum float64
	var rated int
	for _, card := range cards {
		stats.TotalReviews += card.ReviewsCount
		stats.AnsweredReviews += card.AnsweredReviews
		stats.NegativeReviewsCount += card.NegativeReviewsCount
		stats.PositiveReviewsCount += card.PositiveReviewsCount
		if card.Rating != nil {
			ratingSum += *card.Rating
			rated++
		}
	}
	if rated > 0 {
		mean := ratingSum / float64(rated)
		stats.TotalRating = &mean
	}
	return stats
}
