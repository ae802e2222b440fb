package roll

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jsphweid/midiroll/constants"
	"github.com/jsphweid/midiroll/model"
	"github.com/jsphweid/midiroll/tape"
	"github.com/jsphweid/midiroll/util"
	"github.com/pkg/errors"
)

var ErrLabelMismatch = errors.New("roll labels and tapes disagree")

// stored is the on-disk roll. Tapes is only filled for self-contained rolls;
// otherwise each label points at a sibling tape file.
type stored struct {
	SourcePath    string
	SourceHash    string
	Labels        []model.Label
	SelfContained bool
	Tapes         []*tape.Tape
}

// TapePath is where tape index of the roll at rollPath lives when the roll
// is not self-contained.
func TapePath(rollPath string, index int) string {
	base := strings.TrimSuffix(rollPath, filepath.Ext(rollPath))
	return fmt.Sprintf("%s_%d%s", base, index, constants.TapeExt)
}

// Dump writes the roll to rollPath. Unless selfContained, every tape goes
// to its own file next to the roll, referenced from its label.
func (r *Roll) Dump(rollPath string, selfContained bool) error {
	if len(r.Labels) != len(r.Tapes) {
		return ErrLabelMismatch
	}
	s := stored{
		SourcePath:    r.SourcePath,
		SourceHash:    r.SourceHash,
		Labels:        make([]model.Label, len(r.Labels)),
		SelfContained: selfContained,
	}
	copy(s.Labels, r.Labels)

	if selfContained {
		s.Tapes = r.Tapes
		for i := range s.Labels {
			s.Labels[i].StorageReference = ""
		}
	} else {
		for i, t := range r.Tapes {
			path := TapePath(rollPath, i)
			buf := new(bytes.Buffer)
			if _, err := t.WriteTo(buf); err != nil {
				return err
			}
			if err := util.WriteFileAtomic(path, buf.Bytes()); err != nil {
				return err
			}
			s.Labels[i].StorageReference = filepath.Base(path)
		}
	}

	if err := util.CreateBinary(rollPath, s); err != nil {
		return err
	}
	r.Labels = s.Labels
	return nil
}

// LoadHeader reads a roll without its tapes.
func LoadHeader(rollPath string) (*Roll, error) {
	s, err := util.ReadBinary[stored](rollPath)
	if err != nil {
		return nil, err
	}
	return &Roll{SourcePath: s.SourcePath, SourceHash: s.SourceHash, Labels: s.Labels}, nil
}

// Load reads a roll and all of its tapes.
func Load(rollPath string) (*Roll, error) {
	s, err := util.ReadBinary[stored](rollPath)
	if err != nil {
		return nil, err
	}
	r := &Roll{SourcePath: s.SourcePath, SourceHash: s.SourceHash, Labels: s.Labels}
	if s.SelfContained {
		r.Tapes = s.Tapes
	} else {
		for _, label := range s.Labels {
			t, err := LoadTape(rollPath, label)
			if err != nil {
				return nil, err
			}
			r.Tapes = append(r.Tapes, t)
		}
	}
	if len(r.Tapes) != len(r.Labels) {
		return nil, errors.Wrapf(ErrLabelMismatch, "%s: %d labels, %d tapes", rollPath, len(r.Labels), len(r.Tapes))
	}
	return r, nil
}

// LoadTape reads the sibling tape file a label refers to.
func LoadTape(rollPath string, label model.Label) (*tape.Tape, error) {
	if label.StorageReference == "" {
		return nil, errors.Errorf("label %d has no storage reference", label.Index)
	}
	path := filepath.Join(filepath.Dir(rollPath), label.StorageReference)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening tape %d", label.Index)
	}
	defer f.Close()
	t, err := tape.Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return t, nil
}
