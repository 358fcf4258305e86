package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/egoscan/egoscan/internal/finder"
	"github.com/egoscan/egoscan/internal/report"
)

func newRunCmd() *cobra.Command {
	var (
		company string
		website string
		urls    []string
		output  string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a one-shot scan and write the report to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("output") {
				cfg.Output.Path = output
			}
			if cmd.Flags().Changed("format") {
				cfg.Output.Format = format
			}
			outFormat, err := report.ParseFormat(cfg.Output.Format, cfg.Output.Path)
			if err != nil {
				return err
			}

			if company == "" && len(urls) == 0 {
				return fmt.Errorf("either --company or --url is required")
			}

			cardURLs := urls
			if len(cardURLs) == 0 {
				fdr := finder.New(cfg.Chrome, cfg.Finder, log)
				cardURLs, err = fdr.FindCompanyCards(company, website)
				if err != nil {
					return fmt.Errorf("find company cards: %w", err)
				}
			}

			rep := report.New(company)
			rep.Complete(cardsFromURLs(company, cardURLs))

			if err := report.WriteFile(rep, cfg.Output.Path, outFormat); err != nil {
				return err
			}
			log.WithField("path", cfg.Output.Path).
				WithField("cards", len(cardURLs)).
				Info("report written")
			return nil
		},
	}

	cmd.Flags().StringVar(&company, "company", "", "company name to search for")
	cmd.Flags().StringVar(&website, "website", "", "company website to match against")
	cmd.Flags().StringArrayVar(&urls, "url", nil, "card URL to scan directly (repeatable, skips the search)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "report output path")
	cmd.Flags().StringVarP(&format, "format", "f", "", "report format: json, csv or xlsx")
	return cmd
}

func cardsFromURLs(name string, urls []string) []report.CompanyCard {
	cards := make([]report.CompanyCard, 0, len(urls))
	for _, u := range urls {
		cards = append(cards, report.CompanyCard{Name: name, URL: u})
	}
	return cards
}
