package dataset

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

var trainBatchRegexp = regexp.MustCompile(`^data_batch_([0-9]+)\.bin$`)

// DiscoverBatches returns the CIFAR-10 training batch files beneath root,
// ordered by batch number.
func DiscoverBatches(root string) ([]string, error) {
	type found struct {
		n    int
		path string
	}
	var entries []found
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		m := trainBatchRegexp.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return err
		}
		entries = append(entries, found{n: n, path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover batches: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].n != entries[j].n {
			return entries[i].n < entries[j].n
		}
		return entries[i].path < entries[j].path
	})
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.path
	}
	return paths, nil
}
