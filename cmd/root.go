package cmd

import (
	"github.com/jsphweid/midiroll/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:   "midiroll",
	Short: "Normalizes MIDI files into piano roll tapes",
	Long: `midiroll reads standard MIDI files, splits them into per channel
segments of constant tempo and instrument, quantizes each segment to a learned
unit length and stores the result as compact binary tapes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		cfg.ConfigureLogging()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
