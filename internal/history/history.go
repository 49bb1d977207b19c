// Package history persists the log buffer across restarts as a
// zstd-compressed file of JSON lines, one record per line.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/jpalmerr/tailgate/internal/broadcast"
)

// maxLine bounds a single encoded record.
const maxLine = 4 << 20

// Save writes recs to path. The file is written next to path and renamed
// into place, so readers never see a partial snapshot.
func Save(path string, recs []broadcast.Record) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(enc)
	je := json.NewEncoder(bw)
	for i := range recs {
		if err := je.Encode(&recs[i]); err != nil {
			enc.Close()
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot written by [Save]. A missing file is an empty
// history, not an error.
func Load(path string) ([]broadcast.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer dec.Close()

	var recs []broadcast.Record
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec broadcast.Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("snapshot line %d: %w", line, err)
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return recs, nil
}
