//go:build mage

package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/curator/pkg/types"
)

// Stats summarizes a data directory from its JSONL files: rows per table,
// containers, protected slots and containers whose associations are
// published. It prints one JSON object.
//
//	mage stats [--data-dir .curator-db]
func Stats() error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "data directory holding the JSONL files")
	parseTargetFlags(fs)

	summary, err := summarize(*dataDir)
	if err != nil {
		return err
	}
	line, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	fmt.Println(string(line))
	return nil
}

// summarize counts what Stats reports for dataDir.
func summarize(dataDir string) (map[string]int, error) {
	slotContainers := map[string]bool{}
	protected := 0
	slots, err := eachLine(filepath.Join(dataDir, "slots.jsonl"), func(line []byte) {
		var s types.Slot
		if json.Unmarshal(line, &s) != nil {
			return
		}
		slotContainers[s.ContainerID] = true
		if s.Protected() {
			protected++
		}
	})
	if err != nil {
		return nil, err
	}

	statuses := map[string]map[types.Status]bool{}
	assocs, err := eachLine(filepath.Join(dataDir, "associations.jsonl"), func(line []byte) {
		var a struct {
			ContainerID string       `json:"container_id"`
			Status      types.Status `json:"status"`
		}
		if json.Unmarshal(line, &a) != nil {
			return
		}
		if statuses[a.ContainerID] == nil {
			statuses[a.ContainerID] = map[types.Status]bool{}
		}
		statuses[a.ContainerID][a.Status] = true
	})
	if err != nil {
		return nil, err
	}
	published, mixed := 0, 0
	for _, seen := range statuses {
		switch {
		case len(seen) > 1:
			mixed++
		case seen[types.StatusPublished]:
			published++
		}
	}

	records, err := eachLine(filepath.Join(dataDir, "records.jsonl"), func([]byte) {})
	if err != nil {
		return nil, err
	}

	return map[string]int{
		"slots":                  slots,
		"slot_containers":        len(slotContainers),
		"protected_slots":        protected,
		"associations":           assocs,
		"association_containers": len(statuses),
		"published_containers":   published,
		"mixed_status":           mixed,
		"records":                records,
	}, nil
}

// defaultDataDir mirrors the CLI fallback when no flag or config is given.
func defaultDataDir() string {
	if dir := os.Getenv("CURATOR_DATA_DIR"); dir != "" {
		return dir
	}
	return ".curator-db"
}

// eachLine calls fn for every non-empty line of a JSONL file and returns
// how many there were. A missing file counts as empty.
func eachLine(path string, fn func([]byte)) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		n++
		fn(scanner.Bytes())
	}
	return n, scanner.Err()
}
