// Package main is the entry point for comicframes.
package main

import (
	"context"
	"os"
	"path/filepath"

	"charm.land/fang/v2"
	"github.com/spf13/cobra"
)

const (
	defaultConfigFile = "comicframes.toml"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "comicframes",
	Short: "Extract comic frames from PDF documents",
	Long: `comicframes renders comic book PDFs to page images, detects the individual
panels on each page, and extracts them as cropped frame images. Results are
cached across runs in a multi-tier cache.`,
}

func init() {
	// Global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file path (default: ./"+defaultConfigFile+" or ~/.config/comicframes/"+defaultConfigFile+")")
}

func main() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}

// findConfigFile searches for the config file in default locations. Returns
// an empty string when none exists, which means built-in defaults plus
// environment overrides.
func findConfigFile() string {
	candidates := []string{defaultConfigFile, "comicframes.yaml"}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		for _, c := range candidates {
			p := filepath.Join(home, ".config", "comicframes", c)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}

	return ""
}

// configPath resolves the effective config path from the --config flag or
// the default search locations.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return findConfigFile()
}
