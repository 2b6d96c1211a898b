package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omarluq/comicframes/cmd/comicframes/di"
	"github.com/omarluq/comicframes/internal/model"
)

var modelsListFlags struct {
	modelType string
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Model registry commands",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered models",
	RunE:  runModelsList,
}

var modelsFetchCmd = &cobra.Command{
	Use:   "fetch <name>",
	Short: "Download a model's weights into the models directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsFetch,
}

func init() {
	modelsListCmd.Flags().StringVarP(&modelsListFlags.modelType, "type", "t", "", "filter by model type")
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsFetchCmd)
	rootCmd.AddCommand(modelsCmd)
}

func runModelsList(cmd *cobra.Command, _ []string) error {
	container, err := di.NewContainer(configPath())
	if err != nil {
		return err
	}
	defer shutdownContainer(container)

	registrySvc, err := di.Invoke[*di.RegistryService](container)
	if err != nil {
		return err
	}

	configs := registrySvc.Registry.List(model.Type(modelsListFlags.modelType))
	if len(configs) == 0 {
		fmt.Println("No models registered")
		return nil
	}

	for _, cfg := range configs {
		fmt.Printf("%-22s %-24s", cfg.Name, cfg.Type)
		if cfg.DownloadURL != "" {
			fmt.Print(" downloadable")
		}
		fmt.Println()
	}
	return nil
}

func runModelsFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(configPath())
	if err != nil {
		return err
	}
	defer shutdownContainer(container)

	loaderSvc, err := di.Invoke[*di.LoaderService](container)
	if err != nil {
		return err
	}

	result, err := loaderSvc.Loader.Ensure(ctx, args[0])
	if err != nil {
		return err
	}

	switch {
	case result.Path == "":
		fmt.Printf("%s has no downloadable weights\n", result.Name)
	case result.Downloaded:
		fmt.Printf("Downloaded %s to %s in %s\n", result.Name, result.Path, result.LoadTime.Round(timePrecision))
	case result.Cached:
		fmt.Printf("Restored %s from cache to %s\n", result.Name, result.Path)
	default:
		fmt.Printf("%s already present at %s\n", result.Name, result.Path)
	}
	return nil
}
