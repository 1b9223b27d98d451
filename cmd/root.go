// Package cmd contains the soilwise CLI commands.
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "soilwise",
	Short: "SoilWise - retrieval-augmented QA backend for geotechnical documents",
	Long: `SoilWise indexes geotechnical documents (PDF, text, markdown) into a
pgvector-backed store and answers questions against them through a local
Ollama model, with partition-priority retrieval and a Redis answer cache.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// A missing .env file is fine; the environment and config file still apply.
	_ = godotenv.Load()
}
