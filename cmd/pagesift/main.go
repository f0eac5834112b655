package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/pagesift/config"
	"github.com/mohammad-safakhou/pagesift/extractor"
	"github.com/mohammad-safakhou/pagesift/internal/server"
	"github.com/mohammad-safakhou/pagesift/provider"
	"github.com/mohammad-safakhou/pagesift/scrape"
	"github.com/mohammad-safakhou/pagesift/session"
	"github.com/mohammad-safakhou/pagesift/tools/webfetch"
)

func main() {
	root := &cobra.Command{Use: "pagesift"}

	var cfgPath string
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run(cfgPath)
		},
	}

	var timeout time.Duration
	scrapeCmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "One-shot extraction of a single page to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if err := cfg.LLM.Validate(); err != nil {
				return err
			}
			llm, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Images.Dir, 0o755); err != nil {
				return err
			}
			store := session.NewInMemory(cfg.Sessions.TTL)
			defer store.Close()

			svc := scrape.NewService(cfg, webfetch.NewCascade(cfg.Scraping),
				extractor.New(llm, cfg.LLM.PromptTokenBudget), store)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			result, err := svc.Scrape(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	scrapeCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline")

	root.AddCommand(serve, scrapeCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
