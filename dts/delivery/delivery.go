// Package delivery implements the endpoint delivery executor of
// spec.md §4.7: computing the target path, preparing the delivery
// directory, copying the spooled file, running the delivery command,
// and folding back any .par parameter file the command produced.
package delivery

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dts-project/dts/control"
	"github.com/dts-project/dts/fserrors"
	"github.com/dts-project/dts/lib/pacer"
)

// NullCommand is the distinguished delivery command that deletes the
// delivered file/tree and reports OK (spec.md §4.7 step 4).
const NullCommand = "dts.null"

// CopyRetries is the number of times the spooled-file copy is retried
// before giving up (spec.md §4.7 step 3).
const CopyRetries = 3

// TargetPath computes deliveryDir/<substituted name> from the
// deliverAs template rule (spec.md §4.7 step 1).
func TargetPath(deliveryDir, deliverAs string, rec *control.Record) string {
	name := substitutedName(deliverAs, rec)
	return filepath.Join(deliveryDir, name)
}

func substitutedName(deliverAs string, rec *control.Record) string {
	switch {
	case strings.HasPrefix(deliverAs, "$F"):
		return rec.Filename
	case strings.HasPrefix(deliverAs, "$D"):
		return rec.DeliveryName
	case deliverAs != "":
		return deliverAs
	case rec.DeliveryName != "":
		return rec.DeliveryName
	default:
		return rec.Filename
	}
}

// PrepareDir ensures deliveryDir exists, is a directory, and is
// writable, per spec.md §4.7 step 2: create with mode 0775 if missing,
// then probe writability with a throwaway .test file.
func PrepareDir(deliveryDir string) error {
	if err := os.MkdirAll(deliveryDir, 0o775); err != nil {
		return fmt.Errorf("delivery: create directory: %w", err)
	}
	info, err := os.Stat(deliveryDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("delivery: %s exists and is not a directory", deliveryDir)
	}
	probe := filepath.Join(deliveryDir, ".test")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return fmt.Errorf("delivery: directory not writable: %w", err)
	}
	return os.Remove(probe)
}

// CopyToTarget copies src to dst byte-exact, retrying up to
// CopyRetries times (spec.md §4.7 step 3). Directories are copied
// recursively, preserving modes and symlinks.
func CopyToTarget(src, dst string) error {
	p := pacer.New(pacer.RetriesOption(CopyRetries - 1))
	return p.Call(func() (bool, error) {
		err := copyPath(src, dst)
		return err != nil, err
	})
}

func copyPath(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		_ = os.Remove(dst)
		return os.Symlink(target, dst)
	case info.IsDir():
		return copyDir(src, dst, info)
	default:
		return copyFile(src, dst, info)
	}
}

func copyDir(src, dst string, info os.FileInfo) error {
	if err := os.MkdirAll(dst, info.Mode()); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := copyPath(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// DeleteDelivered removes the delivered file or tree, implementing
// the dts.null command's effect (spec.md §4.7 step 4).
func DeleteDelivered(path string) error {
	return os.RemoveAll(path)
}

// ApplyParFile parses a <qname>.par file (key value lines), folds its
// entries into the Control Record's parameter list, applies a
// deliveryName override if present, and removes the file (spec.md
// §4.7 step 5).
func ApplyParFile(dir, qname string, rec *control.Record) error {
	path := filepath.Join(dir, qname+".par")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		key, value := fields[0], strings.TrimSpace(fields[1])
		if key == "deliveryName" {
			rec.DeliveryName = value
			continue
		}
		if err := rec.Set(key, value); err != nil {
			return err
		}
	}
	return os.Remove(path)
}

// Result summarizes a single delivery attempt for the manager's
// updateStats step and history log (spec.md §4.7 step 6).
type Result struct {
	Status      fserrors.DeliveryStatus
	TargetPath  string
	CommandUsed string
}
