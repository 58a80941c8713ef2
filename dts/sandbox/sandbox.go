// Package sandbox confines every RPC-exposed path to a node's sandbox
// root, per spec.md §4.2. Every RPC handler that touches the
// filesystem must resolve its path through Resolve before any
// syscall — this is the chokepoint the rest of the engine depends on.
package sandbox

import (
	"crypto/subtle"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Sandbox confines paths to Root, recognizing OpsPassword as an
// escape prefix for node administration (spec.md §4.2 rule 1).
type Sandbox struct {
	OpsPassword string // first six characters are the escape prefix

	mu   sync.RWMutex
	root string
}

// New creates a Sandbox rooted at root, using the first six characters
// of opsPassword as the administrative escape prefix.
func New(root, opsPassword string) *Sandbox {
	return &Sandbox{root: filepath.Clean(root), OpsPassword: opsPassword}
}

// Root returns the sandbox's current root, safe to call while setRoot
// (spec.md §6) concurrently updates it.
func (s *Sandbox) Root() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// SetRoot updates the sandbox's root, as the setRoot RPC verb does at
// runtime.
func (s *Sandbox) SetRoot(root string) {
	s.mu.Lock()
	s.root = root
	s.mu.Unlock()
}

func (s *Sandbox) escapePrefix() string {
	if len(s.OpsPassword) < 6 {
		return ""
	}
	return s.OpsPassword[:6]
}

// Resolve implements spec.md §4.2's five rules in order and returns
// the path an RPC handler may safely touch with a syscall.
func (s *Sandbox) Resolve(in string) string {
	// Rule 1: ops-password escape. Constant-time compare since this
	// gates an administrative bypass (see DESIGN.md / SPEC_FULL.md §D).
	if prefix := s.escapePrefix(); prefix != "" && len(in) >= len(prefix) {
		if subtle.ConstantTimeCompare([]byte(in[:len(prefix)]), []byte(prefix)) == 1 {
			return in[len(prefix):]
		}
	}

	// Rule 2: literal "./" is a local cwd shortcut, returned verbatim.
	if in == "./" {
		return "./"
	}

	root := s.Root()
	if in == "" {
		return root
	}

	var resolved string
	if strings.Contains(in, "..") {
		// Rule 3: stack-based rewriter, never pops below the root.
		resolved = root + fixupDotDot(in)
	} else {
		// Rule 4: use unchanged if it already contains the root,
		// otherwise join with exactly one '/'.
		candidate := in
		if strings.HasPrefix(candidate, root) {
			resolved = candidate
		} else {
			if !strings.HasPrefix(candidate, "/") {
				candidate = "/" + candidate
			}
			resolved = root + candidate
		}
	}

	// Rule 5: follow symlinks to files (not directories) so the
	// sandbox can export individual file links that point outside it.
	if fi, err := os.Lstat(resolved); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if target, err := os.Readlink(resolved); err == nil {
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(resolved), target)
			}
			if tfi, err := os.Stat(target); err == nil && !tfi.IsDir() {
				return target
			}
		}
	}

	return resolved
}

// fixupDotDot implements dts_pathFixup: break the path into elements,
// popping one element per ".." but never below the root (i.e. the
// stack never goes negative), then reassemble with leading '/'.
func fixupDotDot(in string) string {
	var dirs []string
	i := 0
	n := len(in)
	for i < n {
		if in[i] == '/' {
			i++
			continue
		}
		if i+1 < n && in[i] == '.' && in[i+1] == '.' && (i+2 == n || in[i+2] == '/') {
			if len(dirs) > 0 {
				dirs = dirs[:len(dirs)-1]
			}
			i += 2
			continue
		}
		start := i
		for i < n && in[i] != '/' {
			i++
		}
		if start < i {
			dirs = append(dirs, in[start:i])
		}
	}
	return "/" + strings.Join(dirs, "/")
}
