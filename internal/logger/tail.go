package logger

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Tail returns the last n lines from the file at path, in order. Zero or
// negative n yields no lines. Returns an error if the file cannot be read.
func Tail(path string, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	// Ring buffer over the scan so memory stays bounded by n lines.
	buf := make([]string, 0, n)
	idx := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(buf) < n {
			buf = append(buf, scanner.Text())
		} else {
			buf[idx%n] = scanner.Text()
		}
		idx++
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading log file: %w", err)
	}

	if len(buf) < n {
		return strings.Join(buf, "\n"), nil
	}
	start := idx % n
	ordered := make([]string, 0, n)
	ordered = append(ordered, buf[start:]...)
	ordered = append(ordered, buf[:start]...)
	return strings.Join(ordered, "\n"), nil
}
