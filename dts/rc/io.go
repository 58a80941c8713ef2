package rc

import (
	"context"
	"fmt"
	"os"
)

// registerIO wires the low-level I/O verbs of spec.md §6: read, write,
// prealloc, stat, statVal. Every path argument is resolved through
// d.Sandbox, same as the file utilities.
func (d *Daemon) registerIO(reg *Registry) {
	reg.Add(Call{Path: "read", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := in.GetString("path")
		if err != nil {
			return nil, err
		}
		offset, err := in.GetInt64("offset")
		if err != nil {
			return nil, err
		}
		size, err := in.GetInt64("size")
		if err != nil {
			return nil, err
		}
		f, err := os.Open(d.Sandbox.Resolve(p))
		if err != nil {
			return nil, err
		}
		defer f.Close()

		buf := make([]byte, size)
		n, err := f.ReadAt(buf, offset)
		if err != nil && n == 0 {
			return nil, err
		}
		return Params{"bytes": buf[:n]}, nil
	}})

	reg.Add(Call{Path: "write", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := in.GetString("path")
		if err != nil {
			return nil, err
		}
		offset, err := in.GetInt64("offset")
		if err != nil {
			return nil, err
		}
		raw, err := in.Get("bytes")
		if err != nil {
			return nil, err
		}
		data, ok := raw.([]byte)
		if !ok {
			if s, ok := raw.(string); ok {
				data = []byte(s)
			} else {
				return nil, fmt.Errorf("rc: write: bytes parameter is not []byte or string")
			}
		}

		f, err := os.OpenFile(d.Sandbox.Resolve(p), os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		n, err := f.WriteAt(data, offset)
		if err != nil {
			return nil, err
		}
		return Params{"written": n}, nil
	}})

	reg.Add(Call{Path: "prealloc", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := in.GetString("path")
		if err != nil {
			return nil, err
		}
		size, err := in.GetInt64("size")
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(d.Sandbox.Resolve(p), os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := f.Truncate(size); err != nil {
			return nil, err
		}
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "stat", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := in.GetString("path")
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(d.Sandbox.Resolve(p))
		if err != nil {
			return nil, err
		}
		return Params{
			"size":    info.Size(),
			"mode":    fmt.Sprintf("%04o", info.Mode().Perm()),
			"isDir":   info.IsDir(),
			"modTime": info.ModTime().UTC().Format("2006-01-02T15:04:05Z"),
		}, nil
	}})

	reg.Add(Call{Path: "statVal", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := in.GetString("path")
		if err != nil {
			return nil, err
		}
		field, err := in.GetString("field")
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(d.Sandbox.Resolve(p))
		if err != nil {
			return nil, err
		}
		switch field {
		case "size":
			return Params{"value": fmt.Sprintf("%d", info.Size())}, nil
		case "mode":
			return Params{"value": fmt.Sprintf("%04o", info.Mode().Perm())}, nil
		case "isDir":
			return Params{"value": fmt.Sprintf("%t", info.IsDir())}, nil
		case "modTime":
			return Params{"value": info.ModTime().UTC().Format("2006-01-02T15:04:05Z")}, nil
		default:
			return nil, fmt.Errorf("rc: statVal: unknown field %q", field)
		}
	}})
}
