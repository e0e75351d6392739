package audit

import (
	"bufio"
	"errors"
	"fmt"
	"os"
)

// maxLineSize bounds a single JSONL entry. Deployment payloads carry manifests.
const maxLineSize = 4 * 1024 * 1024

// errStop ends a walk early without reporting an error.
var errStop = errors.New("stop")

// eachLine calls fn for every line of the log, numbered from 1.
// The slice passed to fn is only valid until fn returns.
func eachLine(path string, fn func(n int, line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	n := 0
	for scanner.Scan() {
		n++
		if err := fn(n, scanner.Bytes()); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("line %d: %w", n+1, err)
	}
	return nil
}
