package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/egoscan/egoscan/internal/finder"
	"github.com/egoscan/egoscan/internal/report"
	"github.com/egoscan/egoscan/internal/server"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scan intake API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Server.Listen = listen
			}

			parse := func(ctx context.Context, req server.SearchRequest) ([]report.CompanyCard, error) {
				fdr := finder.New(cfg.Chrome, cfg.Finder, log)
				urls, err := fdr.FindCompanyCards(req.CompanyName, req.CompanySite)
				if err != nil {
					return nil, err
				}
				return cardsFromURLs(req.CompanyName, urls), nil
			}

			queue := server.NewTaskQueue(parse, log)
			srv := server.New(cfg.Server.Listen, queue, log)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address, host:port")
	return cmd
}
