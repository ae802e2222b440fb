package cmd

import (
	"io"

	"github.com/jsphweid/midiroll/model"
	"github.com/jsphweid/midiroll/roll"
	"github.com/jsphweid/midiroll/tape"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var headerOnly bool

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().BoolVar(&headerOnly, "header", false, "print labels only, without reading tapes")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <roll>",
	Short: "Prints a roll as YAML",
	Long:  `Prints a roll's labels, tape headers and decoded records as YAML.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return Inspect(cmd.OutOrStdout(), args[0], headerOnly)
	},
}

type inspectedTape struct {
	Label   model.Label       `yaml:"label"`
	Header  tape.Header       `yaml:"header"`
	Records []model.TapeEvent `yaml:"records"`
}

type inspectedRoll struct {
	Source string          `yaml:"source"`
	Hash   string          `yaml:"hash"`
	Labels []model.Label   `yaml:"labels,omitempty"`
	Tapes  []inspectedTape `yaml:"tapes,omitempty"`
}

func tapeEvents(t *tape.Tape) ([]model.TapeEvent, error) {
	records, err := t.Records()
	if err != nil {
		return nil, err
	}
	res := make([]model.TapeEvent, 0, len(records))
	for _, r := range records {
		ev := model.TapeEvent{Kind: r.Tag.String(), Tick: r.Tick}
		if r.IsNote() {
			ev.Pitch = r.Pitch
			ev.Velocity = r.Velocity
		}
		res = append(res, ev)
	}
	return res, nil
}

func Inspect(w io.Writer, rollPath string, headerOnly bool) error {
	var out inspectedRoll
	if headerOnly {
		r, err := roll.LoadHeader(rollPath)
		if err != nil {
			return err
		}
		out = inspectedRoll{Source: r.SourcePath, Hash: r.SourceHash, Labels: r.Labels}
	} else {
		r, err := roll.Load(rollPath)
		if err != nil {
			return err
		}
		out = inspectedRoll{Source: r.SourcePath, Hash: r.SourceHash}
		for i, t := range r.Tapes {
			events, err := tapeEvents(t)
			if err != nil {
				return err
			}
			out.Tapes = append(out.Tapes, inspectedTape{Label: r.Labels[i], Header: t.Header(), Records: events})
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
