package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vantagehq/vantage/pkg/etl"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Ingest an ABR bulk extract file",
	Long: `Ingest one ABR public XML file into the store.

The file is streamed, so multi-hundred-megabyte extracts are processed in
bounded memory. Re-running the same file is idempotent: businesses upsert
by ABN and their alternate names are replaced.

Examples:
  # Seed one extract file
  vantage seed -f /data/20231105_Public01.xml

  # Seed against a specific configuration
  vantage seed -f /data/20231105_Public01.xml --config vantage.yaml`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringP("file", "f", "", "ABR XML file to ingest (required)")
	_ = seedCmd.MarkFlagRequired("file")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	filePath, _ := cmd.Flags().GetString("file")

	orchestrator := etl.NewOrchestrator(cfg)
	messages, err := orchestrator.Run(context.Background(), filePath)
	if err != nil {
		return err
	}

	fmt.Printf("Ingesting %s...\n", filePath)
	for msg := range messages {
		switch msg.Kind {
		case etl.MessageProgress:
			fmt.Printf("  processed %d records\n", msg.Processed)
		case etl.MessageDone:
			fmt.Printf("✓ Done: %d processed, %d inserted in %dms\n",
				msg.Done.TotalProcessed, msg.Done.TotalInserted, msg.Done.DurationMs)
			return nil
		case etl.MessageError:
			return fmt.Errorf("ingestion failed: %s", msg.Err)
		}
	}
	return fmt.Errorf("ingestion ended without completion")
}
