package cmd

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/jsphweid/midiroll/constants"
	"github.com/jsphweid/midiroll/model"
	"github.com/jsphweid/midiroll/roll"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves rolls over HTTP",
	Long:  `Serves the rolls in the roll dir as JSON: summaries, decoded tapes and combined tempo groups.`,
	Run: func(cmd *cobra.Command, args []string) {
		logrus.Infof("serving %v on %v", cfg.RollDir, cfg.ListenAddr)
		logrus.Fatal(http.ListenAndServe(cfg.ListenAddr, NewHandler(cfg.RollDir)))
	},
}

var errBadName = errors.New("roll name leaves the roll dir")

type rollServer struct {
	dir string
}

// NewHandler serves the rolls under dir.
func NewHandler(dir string) http.Handler {
	s := &rollServer{dir: dir}
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/rolls", s.handleList).Methods("GET")
	// more specific routes first, names may contain slashes
	router.HandleFunc("/rolls/{name:.+}/tapes/{index:[0-9]+}", s.handleTape).Methods("GET")
	router.HandleFunc("/rolls/{name:.+}/groups/{tempo:[0-9]+}", s.handleGroup).Methods("GET")
	router.HandleFunc("/rolls/{name:.+}", s.handleRoll).Methods("GET")
	return cors.Default().Handler(router)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("could not write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		status = http.StatusNotFound
	case errors.Is(err, errBadName):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, model.ErrorResponse{Error: err.Error()})
}

func (s *rollServer) rollPath(name string) (string, error) {
	path := filepath.Join(s.dir, filepath.FromSlash(name)+constants.RollExt)
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Wrap(errBadName, name)
	}
	return path, nil
}

func (s *rollServer) handleList(w http.ResponseWriter, r *http.Request) {
	paths, err := listRolls(s.dir)
	if err != nil {
		writeError(w, err)
		return
	}
	res := make([]model.RollSummary, 0, len(paths))
	for _, path := range paths {
		header, err := roll.LoadHeader(path)
		if err != nil {
			logrus.WithField("file", path).Warnf("skipping unreadable roll: %v", err)
			continue
		}
		rel, _ := filepath.Rel(s.dir, path)
		name := strings.TrimSuffix(filepath.ToSlash(rel), constants.RollExt)
		res = append(res, header.Summary(name))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *rollServer) handleRoll(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	path, err := s.rollPath(name)
	if err != nil {
		writeError(w, err)
		return
	}
	header, err := roll.LoadHeader(path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, header.Summary(name))
}

func (s *rollServer) handleTape(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	path, err := s.rollPath(vars["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	loaded, err := roll.Load(path)
	if err != nil {
		writeError(w, err)
		return
	}
	index, err := strconv.Atoi(vars["index"])
	if err != nil || index >= len(loaded.Tapes) {
		writeError(w, errors.Wrapf(fs.ErrNotExist, "tape %v", vars["index"]))
		return
	}
	events, err := tapeEvents(loaded.Tapes[index])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.TapeResponse{Label: loaded.Labels[index], Events: events})
}

func (s *rollServer) handleGroup(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	path, err := s.rollPath(vars["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	loaded, err := roll.Load(path)
	if err != nil {
		writeError(w, err)
		return
	}
	tempo, err := strconv.ParseUint(vars["tempo"], 10, 32)
	if err != nil {
		writeError(w, errors.Wrapf(fs.ErrNotExist, "tempo %v", vars["tempo"]))
		return
	}
	for _, g := range loaded.Groups() {
		if g.Tempo != uint32(tempo) {
			continue
		}
		grid, start, err := roll.Combine(g.Tapes)
		if err != nil {
			writeError(w, err)
			return
		}
		res := model.GridResponse{
			Tempo:  g.Tempo,
			Start:  start,
			Frames: make([][]float64, len(grid)),
			Onsets: make([][]float64, len(grid)),
		}
		for i, row := range grid {
			res.Frames[i] = make([]float64, len(row))
			res.Onsets[i] = make([]float64, len(row))
			for p, cell := range row {
				res.Frames[i][p] = cell.Velocity
				res.Onsets[i][p] = cell.Onset
			}
		}
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeError(w, errors.Wrapf(fs.ErrNotExist, "no group with tempo %v", tempo))
}
