package rc

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dts-project/dts/checksum"
	"github.com/dts-project/dts/log"
	"github.com/dts-project/dts/sandbox"
)

// registerFileUtil wires the sandboxed file-utility verbs of spec.md
// §6: access, cat, checksum, copy, cwd, isDir, chmod, del, dir,
// destDir, diskUsed, diskFree, echo, fsize, fmode, ftime, mkdir, ping,
// pingSleep, pingStr, pingArray, remotePing, rename, setRoot, setDbg,
// touch. Every path argument is resolved through d.Sandbox first.
func (d *Daemon) registerFileUtil(reg *Registry) {
	path := func(in Params) (string, error) {
		p, err := in.GetString("path")
		if err != nil {
			return "", err
		}
		return d.Sandbox.Resolve(p), nil
	}

	reg.Add(Call{Path: "access", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := path(in)
		if err != nil {
			return nil, err
		}
		_, statErr := os.Stat(p)
		return Params{"exists": statErr == nil}, nil
	}})

	reg.Add(Call{Path: "cat", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := path(in)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		return Params{"data": data}, nil
	}})

	reg.Add(Call{Path: "checksum", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := path(in)
		if err != nil {
			return nil, err
		}
		sum32, crc, err := checksum.CombinedFile(p)
		if err != nil {
			return nil, err
		}
		md5, err := checksum.MD5File(p)
		if err != nil {
			return nil, err
		}
		return Params{"sum32": sum32, "crc32": crc, "md5": md5}, nil
	}})

	reg.Add(Call{Path: "copy", Fn: func(ctx context.Context, in Params) (Params, error) {
		src, err := in.GetString("src")
		if err != nil {
			return nil, err
		}
		dst, err := in.GetString("dst")
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(d.Sandbox.Resolve(src))
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(d.Sandbox.Resolve(dst), data, 0o644); err != nil {
			return nil, err
		}
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "cwd", Fn: func(ctx context.Context, in Params) (Params, error) {
		return Params{"root": d.Sandbox.Root()}, nil
	}})

	reg.Add(Call{Path: "isDir", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := path(in)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		return Params{"isDir": info.IsDir()}, nil
	}})

	reg.Add(Call{Path: "chmod", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := path(in)
		if err != nil {
			return nil, err
		}
		modeStr, err := in.GetString("mode")
		if err != nil {
			return nil, err
		}
		mode, err := strconv.ParseUint(modeStr, 8, 32)
		if err != nil {
			return nil, fmt.Errorf("rc: chmod: invalid mode %q: %w", modeStr, err)
		}
		if err := os.Chmod(p, os.FileMode(mode)); err != nil {
			return nil, err
		}
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "del", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := path(in)
		if err != nil {
			return nil, err
		}
		if err := os.RemoveAll(p); err != nil {
			return nil, err
		}
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "dir", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := path(in)
		if err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		return Params{"entries": names}, nil
	}})

	reg.Add(Call{Path: "destDir", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := path(in)
		if err != nil {
			return nil, err
		}
		return Params{"dir": p}, nil
	}})

	reg.Add(Call{Path: "diskUsed", Fn: func(ctx context.Context, in Params) (Params, error) {
		used, err := sandbox.UsedBytes(d.Sandbox.Root())
		if err != nil {
			return nil, err
		}
		return Params{"used": used}, nil
	}})

	reg.Add(Call{Path: "diskFree", Fn: func(ctx context.Context, in Params) (Params, error) {
		free, err := sandbox.FreeBytes(d.Sandbox.Root())
		if err != nil {
			return nil, err
		}
		return Params{"free": free}, nil
	}})

	reg.Add(Call{Path: "echo", Fn: func(ctx context.Context, in Params) (Params, error) {
		return in, nil
	}})

	reg.Add(Call{Path: "fsize", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := path(in)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		return Params{"size": info.Size()}, nil
	}})

	reg.Add(Call{Path: "fmode", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := path(in)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		return Params{"mode": fmt.Sprintf("%04o", info.Mode().Perm())}, nil
	}})

	reg.Add(Call{Path: "ftime", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := path(in)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		return Params{"mtime": info.ModTime().UTC().Format(time.RFC3339)}, nil
	}})

	reg.Add(Call{Path: "mkdir", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := path(in)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(p, 0o775); err != nil {
			return nil, err
		}
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "ping", Fn: func(ctx context.Context, in Params) (Params, error) {
		return Params{"pong": true}, nil
	}})

	reg.Add(Call{Path: "pingSleep", Fn: func(ctx context.Context, in Params) (Params, error) {
		ms, err := in.GetInt64("ms")
		if err != nil {
			ms = 0
		}
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return Params{"pong": true}, nil
	}})

	reg.Add(Call{Path: "pingStr", Fn: func(ctx context.Context, in Params) (Params, error) {
		return Params{"pong": d.Name}, nil
	}})

	reg.Add(Call{Path: "pingArray", Fn: func(ctx context.Context, in Params) (Params, error) {
		return Params{"pong": d.QueueNames()}, nil
	}})

	reg.Add(Call{Path: "remotePing", Fn: func(ctx context.Context, in Params) (Params, error) {
		host, err := in.GetString("host")
		if err != nil {
			return nil, err
		}
		client, err := Dial(host)
		if err != nil {
			return Params{"reachable": false}, nil
		}
		defer client.Close()
		if _, err := client.Call("ping", Params{}); err != nil {
			return Params{"reachable": false}, nil
		}
		return Params{"reachable": true}, nil
	}})

	reg.Add(Call{Path: "rename", Fn: func(ctx context.Context, in Params) (Params, error) {
		src, err := in.GetString("src")
		if err != nil {
			return nil, err
		}
		dst, err := in.GetString("dst")
		if err != nil {
			return nil, err
		}
		if err := os.Rename(d.Sandbox.Resolve(src), d.Sandbox.Resolve(dst)); err != nil {
			return nil, err
		}
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "setRoot", Fn: func(ctx context.Context, in Params) (Params, error) {
		root, err := in.GetString("root")
		if err != nil {
			return nil, err
		}
		d.Sandbox.SetRoot(root)
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "setDbg", Fn: func(ctx context.Context, in Params) (Params, error) {
		cat, err := in.GetString("category")
		if err != nil {
			return nil, err
		}
		on, err := in.GetBool("on")
		if err != nil {
			on = true
		}
		if on {
			os.Setenv(cat, "1")
		} else {
			os.Unsetenv(cat)
		}
		_ = log.Category(cat)
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "touch", Fn: func(ctx context.Context, in Params) (Params, error) {
		p, err := path(in)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		if _, statErr := os.Stat(p); os.IsNotExist(statErr) {
			f, err := os.Create(p)
			if err != nil {
				return nil, err
			}
			f.Close()
		}
		if err := os.Chtimes(p, now, now); err != nil {
			return nil, err
		}
		return Params{"ok": true}, nil
	}})
}
