package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jsphweid/midiroll/constants"
	"github.com/jsphweid/midiroll/roll"
	"github.com/jsphweid/midiroll/tape"
	"github.com/jsphweid/midiroll/util"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report [roll dir]",
	Short: "Creates a report",
	Long: `Creates a report over every roll in the roll dir: tape counts and,
per tempo group, how the onsets of the combined grid compare with the onsets
of its tapes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.RollDir
		if len(args) == 1 {
			dir = args[0]
		}
		rep, err := analyzeRolls(dir)
		if err != nil {
			return err
		}
		rep.print(cmd.OutOrStdout())
		return nil
	},
}

type groupReport struct {
	roll          string
	tempo         uint32
	numTapes      int
	rows          int
	onsetsPerTape []uint64
	// combined onsets are summed weights, so equal to the per tape count
	// only when no two tapes start a note on the same cell
	combinedOnsets float64
}

type rollsReport struct {
	numRolls int
	numTapes int
	numBytes int64
	failed   []string
	groups   []groupReport
}

func listRolls(dir string) ([]string, error) {
	var res []string
	walk := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, constants.RollExt) {
			res = append(res, path)
		}
		return nil
	}
	if err := filepath.WalkDir(dir, walk); err != nil {
		return nil, errors.Wrapf(err, "listing rolls in %s", dir)
	}
	return res, nil
}

func countOnsets(t *tape.Tape) (uint64, error) {
	records, err := t.Records()
	if err != nil {
		return 0, err
	}
	var n uint64
	for _, r := range records {
		if r.Tag == tape.NoteOn {
			n++
		}
	}
	return n, nil
}

func analyzeGroup(name string, g roll.Group) (groupReport, error) {
	res := groupReport{roll: name, tempo: g.Tempo, numTapes: len(g.Tapes)}
	grid, _, err := roll.Combine(g.Tapes)
	if err != nil {
		return res, err
	}
	res.rows = len(grid)
	for _, row := range grid {
		for _, cell := range row {
			res.combinedOnsets += cell.Onset
		}
	}
	for _, t := range g.Tapes {
		n, err := countOnsets(t)
		if err != nil {
			return res, err
		}
		res.onsetsPerTape = append(res.onsetsPerTape, n)
	}
	return res, nil
}

func analyzeRolls(dir string) (rollsReport, error) {
	var rep rollsReport
	paths, err := listRolls(dir)
	if err != nil {
		return rep, err
	}
	for _, path := range paths {
		name, _ := filepath.Rel(dir, path)
		r, err := roll.Load(path)
		if err != nil {
			rep.failed = append(rep.failed, name)
			continue
		}
		rep.numRolls++
		rep.numTapes += len(r.Tapes)
		if info, err := os.Stat(path); err == nil {
			rep.numBytes += info.Size()
		}
		for _, label := range r.Labels {
			if label.StorageReference == "" {
				continue
			}
			if info, err := os.Stat(filepath.Join(filepath.Dir(path), label.StorageReference)); err == nil {
				rep.numBytes += info.Size()
			}
		}
		for _, g := range r.Groups() {
			gr, err := analyzeGroup(name, g)
			if err != nil {
				return rep, errors.Wrapf(err, "%s tempo %d", name, g.Tempo)
			}
			rep.groups = append(rep.groups, gr)
		}
	}
	return rep, nil
}

func (rep rollsReport) print(w io.Writer) {
	fmt.Fprintf(w, "rolls: %v\n", rep.numRolls)
	fmt.Fprintf(w, "tapes: %v\n", rep.numTapes)
	fmt.Fprintf(w, "bytes: %v\n", rep.numBytes)
	if len(rep.failed) > 0 {
		fmt.Fprintf(w, "unreadable: %v\n", rep.failed)
	}
	for _, g := range rep.groups {
		fmt.Fprintf(w, "%v tempo %v: %v tapes, %v rows, onsets combined %v, per tape %v (total %v)\n",
			g.roll, g.tempo, g.numTapes, g.rows, g.combinedOnsets, g.onsetsPerTape, util.Sum(g.onsetsPerTape))
	}
}
