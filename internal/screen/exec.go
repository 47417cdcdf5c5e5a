package screen

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// runner executes an external command and returns its stdout.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// splitLines returns the non-empty, right-trimmed lines of out.
func splitLines(out []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r "); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// parseBounds parses "x, y, w, h" as printed by the AppleScript helper.
func parseBounds(s string) (x, y, w, h int, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("bounds %q: want 4 fields", s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		if vals[i], err = strconv.Atoi(strings.TrimSpace(p)); err != nil {
			return 0, 0, 0, 0, fmt.Errorf("bounds %q: %w", s, err)
		}
	}
	return vals[0], vals[1], vals[2], vals[3], nil
}

// dedupe keeps the first occurrence of each title, preserving order.
func dedupe(titles []string) []string {
	seen := make(map[string]struct{}, len(titles))
	out := titles[:0]
	for _, t := range titles {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
