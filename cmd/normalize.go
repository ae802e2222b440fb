package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jsphweid/midiroll/batch"
	"github.com/jsphweid/midiroll/config"
	"github.com/jsphweid/midiroll/db"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	force         bool
	selfContained bool
	clean         bool
	workers       int
)

func init() {
	rootCmd.AddCommand(normalizeCmd)
	normalizeCmd.Flags().BoolVar(&force, "force", false, "re-normalize files whose rolls are up to date")
	normalizeCmd.Flags().BoolVar(&selfContained, "self-contained", false, "embed tapes in the roll file")
	normalizeCmd.Flags().BoolVar(&clean, "clean", false, "delete existing rolls first")
	normalizeCmd.Flags().IntVar(&workers, "workers", 0, "files processed at once (default from config)")
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize [max files]",
	Short: "Normalizes every midi file in the media dir",
	Long: `Normalizes every midi file in the media dir into a roll under the
roll dir, mirroring the directory layout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			maxNum, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Wrap(err, "max files")
			}
			cfg.MaxFiles = maxNum
		}
		if cmd.Flags().Changed("force") {
			cfg.Force = force
		}
		if cmd.Flags().Changed("self-contained") {
			cfg.SelfContained = selfContained
		}
		if workers > 0 {
			cfg.Workers = workers
		}
		if clean {
			if err := batch.DeleteAll(cfg.RollDir); err != nil {
				return err
			}
		}

		report, err := Normalize(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "processed: %v, skipped: %v, failed: %v\n",
			report.Processed, report.Skipped, report.Failed)
		return nil
	},
}

// Normalize runs one batch over c, with the DynamoDB catalog when an
// endpoint is configured.
func Normalize(ctx context.Context, c config.Config) (batch.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var catalog batch.Catalog
	if c.DynamoEndpoint != "" {
		dc, err := db.New(c.DynamoEndpoint, c.DynamoRegion, c.DynamoTable)
		if err != nil {
			return batch.Report{}, err
		}
		catalog = dc
	}
	return batch.New(c, catalog).ProcessAllMidiFiles(ctx)
}
