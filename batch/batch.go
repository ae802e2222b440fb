package batch

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/jsphweid/midiroll/config"
	"github.com/jsphweid/midiroll/constants"
	"github.com/jsphweid/midiroll/model"
	"github.com/jsphweid/midiroll/normalize"
	"github.com/jsphweid/midiroll/roll"
	"github.com/jsphweid/midiroll/util"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Catalog is where finished rolls are recorded, see db.Catalog.
type Catalog interface {
	GetRollHashes(filenames []string) (map[string]string, error)
	PutRoll(summary model.RollSummary) error
}

type Report struct {
	Processed int
	Skipped   int
	Failed    int
}

type Runner struct {
	cfg     config.Config
	catalog Catalog
	log     *logrus.Entry

	mu     sync.Mutex
	report Report
}

// New returns a runner over cfg.MediaDir. catalog may be nil.
func New(cfg config.Config, catalog Catalog) *Runner {
	return &Runner{
		cfg:     cfg,
		catalog: catalog,
		log:     logrus.WithField("component", "batch"),
	}
}

// RollPath mirrors a file under the media dir into the roll dir.
func (r *Runner) RollPath(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(r.cfg.RollDir, base+constants.RollExt)
}

func (r *Runner) relative(path string) string {
	rel, err := filepath.Rel(r.cfg.MediaDir, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

func (r *Runner) count(f func(*Report)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f(&r.report)
}

// isCurrent reports whether the roll for name was produced with hash.
func (r *Runner) isCurrent(name string, hash string, known map[string]string) bool {
	if r.cfg.Force {
		return false
	}
	if stored, ok := known[name]; ok {
		return stored == hash
	}
	header, err := roll.LoadHeader(r.RollPath(name))
	if err != nil {
		return false
	}
	return header.SourceHash == hash
}

func (r *Runner) processMidiFile(path string, name string, hash string, known map[string]string) {
	log := r.log.WithField("file", name)
	if r.isCurrent(name, hash, known) {
		log.Debug("roll is up to date")
		r.count(func(rep *Report) { rep.Skipped++ })
		return
	}

	opts := normalize.Options{ChopLoss: r.cfg.ChopLoss, Log: log}
	res, err := normalize.NormalizeFile(path, opts)
	if err == nil {
		res.SourcePath = name
		err = res.Dump(r.RollPath(name), r.cfg.SelfContained)
	}
	if err == nil && r.catalog != nil {
		err = r.catalog.PutRoll(res.Summary(name))
	}
	if err != nil {
		log.Warnf("Skipping %v because: %v", name, err)
		r.count(func(rep *Report) { rep.Failed++ })
		return
	}
	r.count(func(rep *Report) { rep.Processed++ })
}

// ProcessAllMidiFiles normalizes every midi file under the media dir. A
// file that fails is logged and counted, it never stops the others. The
// returned error is for the run as a whole.
func (r *Runner) ProcessAllMidiFiles(ctx context.Context) (Report, error) {
	paths, err := util.GatherAllMidiPaths(r.cfg.MediaDir, r.cfg.MaxFiles)
	if err != nil {
		return Report{}, err
	}
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = r.relative(p)
	}

	known := map[string]string{}
	if r.catalog != nil {
		known, err = r.catalog.GetRollHashes(names)
		if err != nil {
			return Report{}, errors.Wrap(err, "reading catalog")
		}
	}

	r.mu.Lock()
	r.report = Report{}
	r.mu.Unlock()

	hash := roll.LogicHash(r.cfg.ChopLoss)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := range paths {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.log.Infof("Processing %v of %v midi files", i+1, len(paths))
			r.processMidiFile(paths[i], names[i], hash, known)
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report, err
}

var rollFile = regexp.MustCompile(`(` + regexp.QuoteMeta(constants.RollExt) + `|_\d+` + regexp.QuoteMeta(constants.TapeExt) + `)$`)

// DeleteAll removes every roll and tape file under dir.
func DeleteAll(dir string) error {
	walk := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() && rollFile.MatchString(d.Name()) {
			return os.Remove(path)
		}
		return nil
	}
	return errors.Wrapf(filepath.WalkDir(dir, walk), "cleaning %s", dir)
}
