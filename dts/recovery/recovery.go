// Package recovery implements the dtsq front-end's client-side
// recovery mechanism of spec.md §4.9: when a submission can't
// complete the four-step handshake, or the daemon is unreachable, it
// is logged under ~/.dtsq/<queue>/ so it can be replayed later with
// --recover.
package recovery

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
)

// Dir returns ~/.dtsq/<queue>, creating it if necessary.
func Dir(queue string) (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("recovery: resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".dtsq", queue)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// Entry is one unsent submission: host path flags… (spec.md §4.9).
// Flags carries the original submission's flag set and parameters
// verbatim so a replay is indistinguishable from the original attempt.
type Entry struct {
	Host  string
	Path  string
	Flags []string
}

func (e Entry) String() string {
	fields := append([]string{e.Host, e.Path}, e.Flags...)
	return strings.Join(fields, " ")
}

func parseEntry(line string) (Entry, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Entry{}, fmt.Errorf("recovery: malformed Recover line %q", line)
	}
	return Entry{Host: fields[0], Path: fields[1], Flags: fields[2:]}, nil
}

// AppendLog appends a human-readable timestamped error record to
// <dir>/Log.
func AppendLog(dir, message string) error {
	f, err := os.OpenFile(filepath.Join(dir, "Log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s %s\n", time.Now().UTC().Format(time.RFC3339), message)
	return err
}

// AppendRecover appends one unsent-file line to <dir>/Recover.
func AppendRecover(dir string, e Entry) error {
	f, err := os.OpenFile(filepath.Join(dir, "Recover"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, e.String())
	return err
}

// LoadRecover reads every entry currently in <dir>/Recover.
func LoadRecover(dir string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(dir, "Recover"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		e, err := parseEntry(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// RewriteRecover atomically replaces <dir>/Recover with exactly the
// given entries (spec.md §4.9: "atomically rewrites the file with the
// entries that still failed"), via write-to-temp then rename.
func RewriteRecover(dir string, entries []Entry) error {
	target := filepath.Join(dir, "Recover")
	tmp := target + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e.String()); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

// MirrorOffline copies Log and Recover to their *.offline mirrors
// (spec.md §4.9), to be uploaded to the daemon's queue log directory
// on the next successful contact.
func MirrorOffline(dir string) error {
	for _, name := range []string{"Log", "Recover"} {
		src := filepath.Join(dir, name)
		data, err := os.ReadFile(src)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, name+".offline"), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
