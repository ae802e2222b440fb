package util

import (
	"bytes"
	"encoding/gob"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

func IsMidiPath(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasSuffix(lower, ".mid") || strings.HasSuffix(lower, ".midi")
}

// GatherAllMidiPaths walks path for midi files, in lexical order. maxNum of 0
// means no limit.
func GatherAllMidiPaths(path string, maxNum int) ([]string, error) {
	var res []string
	walk := func(s string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsMidiPath(s) {
			if maxNum == 0 || len(res) < maxNum {
				res = append(res, s)
			}
		}
		return nil
	}
	if err := filepath.WalkDir(path, walk); err != nil {
		return nil, errors.Wrapf(err, "walking %s", path)
	}
	return res, nil
}

func GetKeys[A constraints.Ordered, B any](m map[A]B) []A {
	keys := make([]A, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// WriteFileAtomic writes data next to filename under a random name and
// renames it into place, so readers never see a partial file.
func WriteFileAtomic(filename string, data []byte) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	tmp := filepath.Join(dir, "."+uuid.New().String()+".tmp")
	if err := os.WriteFile(tmp, data, 0666); err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}
	if err := os.Rename(tmp, filename); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "renaming into %s", filename)
	}
	return nil
}

func CreateBinary(filename string, data any) error {
	buf := new(bytes.Buffer)
	encoder := gob.NewEncoder(buf)
	if err := encoder.Encode(data); err != nil {
		return errors.Wrapf(err, "encoding %s", filename)
	}
	return WriteFileAtomic(filename, buf.Bytes())
}

func ReadBinary[A any](path string) (A, error) {
	var data A
	f, err := os.Open(path)
	if err != nil {
		return data, errors.Wrap(err, "could not load binary file")
	}
	defer f.Close()

	decoder := gob.NewDecoder(f)
	if err := decoder.Decode(&data); err != nil {
		return data, errors.Wrapf(err, "could not decode binary file %s", path)
	}
	return data, nil
}

func Min[A constraints.Integer](num1 A, num2 A) A {
	if num1 > num2 {
		return num2
	}
	return num1
}

func Sum[A constraints.Integer](nums []A) uint64 {
	var total uint64
	for _, v := range nums {
		total += uint64(v)
	}
	return total
}
