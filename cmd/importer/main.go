package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"lender_directory/internal/adapters/observability"
	"lender_directory/internal/app"
	"lender_directory/internal/bootstrap"
	"lender_directory/internal/importer"
	"lender_directory/internal/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "importer <manifest.json>",
		Short: "Bulk-load lenders and their criteria sheets",
		Long: `Reads a JSON manifest of lenders ({"lenders": [...]}) and creates each one,
uploading the PDF files listed under "sheets". Sheet paths are relative to the
manifest. Lenders whose name already exists are skipped unless --force is set.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         run,
	}
	cmd.Flags().IntP("workers", "w", 0, "concurrent creates (default FETCH_CONCURRENCY)")
	cmd.Flags().Bool("dry-run", false, "parse the manifest and read the files without writing")
	cmd.Flags().Bool("force", false, "create lenders even when the name already exists")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	workers, _ := cmd.Flags().GetInt("workers")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	force, _ := cmd.Flags().GetBool("force")
	if workers <= 0 {
		workers = cfg.FetchConcurrency
	}

	inputs, err := importer.Load(args[0])
	if err != nil {
		log.Error().Err(err).Msg("manifest not loaded")
		return err
	}
	log.Info().Str("manifest", args[0]).Int("lenders", len(inputs)).Int("workers", workers).Msg("importer starting")
	if dryRun {
		for _, in := range inputs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d sheet(s)\n", in.Name, len(in.Documents))
		}
		return nil
	}

	backend, err := bootstrap.Store(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("record store init failed")
		return err
	}
	defer backend.Close()
	blobs, err := bootstrap.Blobs(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("blob store init failed")
		return err
	}

	repo := app.NewLenderRepository(backend.Store, blobs, observability.DefaultReporter(), app.RepoConfig{
		InterestTreatments: cfg.InterestTreatments,
		FetchConcurrency:   cfg.FetchConcurrency,
	})
	if _, err := repo.ListAll(ctx); err != nil {
		log.Error().Err(err).Msg("could not read existing lenders")
		return err
	}

	res := importer.Run(ctx, repo, inputs, workers, force)
	log.Info().
		Int("created", res.Created).
		Int("partial", res.Partial).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("import completed")
	if res.Failed > 0 {
		return fmt.Errorf("%d lender(s) failed to import", res.Failed)
	}
	return nil
}
