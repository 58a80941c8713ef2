package rc

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// registerAdmin wires the administration verbs of spec.md §6:
// initDTS, shutdownDTS, abort, cfg, dtsList, dtsSet, dtsGet,
// submitLogs, getQLog, eraseQLog, nodeStat.
func (d *Daemon) registerAdmin(reg *Registry) {
	reg.Add(Call{Path: "initDTS", Title: "report daemon identity and uptime", Fn: func(ctx context.Context, in Params) (Params, error) {
		return Params{
			"name":      d.Name,
			"startTime": d.StartTime.UTC().Format(time.RFC3339),
			"queues":    d.QueueNames(),
		}, nil
	}})

	reg.Add(Call{Path: "shutdownDTS", Title: "graceful shutdown: SHUTDOWN every queue", Fn: func(ctx context.Context, in Params) (Params, error) {
		d.RequestShutdown()
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "abort", Title: "shutdown (SIGUSR2 equivalent): same RequestShutdown as shutdownDTS, no separate immediate path", Fn: func(ctx context.Context, in Params) (Params, error) {
		d.RequestShutdown()
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "cfg", Title: "get/set a daemon-level config key", Fn: func(ctx context.Context, in Params) (Params, error) {
		key, err := in.GetString("key")
		if err != nil {
			return nil, err
		}
		if value, err := in.GetString("value"); err == nil {
			d.setCfg(key, value)
			return Params{"key": key, "value": value}, nil
		}
		v, ok := d.getCfg(key)
		return Params{"key": key, "value": v, "found": ok}, nil
	}})

	reg.Add(Call{Path: "dtsList", Title: "list every daemon-level config key", Fn: func(ctx context.Context, in Params) (Params, error) {
		return Params{"keys": d.listCfg()}, nil
	}})

	reg.Add(Call{Path: "dtsSet", Title: "set a daemon-level config key", Fn: func(ctx context.Context, in Params) (Params, error) {
		key, err := in.GetString("key")
		if err != nil {
			return nil, err
		}
		value, err := in.GetString("value")
		if err != nil {
			return nil, err
		}
		d.setCfg(key, value)
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "dtsGet", Title: "get a daemon-level config key", Fn: func(ctx context.Context, in Params) (Params, error) {
		key, err := in.GetString("key")
		if err != nil {
			return nil, err
		}
		v, ok := d.getCfg(key)
		if !ok {
			return nil, fmt.Errorf("rc: unknown config key %q", key)
		}
		return Params{"value": v}, nil
	}})

	reg.Add(Call{Path: "submitLogs", Title: "submit recent log lines to this daemon", Fn: func(ctx context.Context, in Params) (Params, error) {
		lines, _ := in["lines"].([]interface{})
		for _, l := range lines {
			if s, ok := l.(string); ok {
				d.Logger.Info(s)
			}
		}
		return Params{"accepted": len(lines)}, nil
	}})

	reg.Add(Call{Path: "getQLog", Title: "fetch recent log lines", Fn: func(ctx context.Context, in Params) (Params, error) {
		return Params{"lines": d.Logger.Recent()}, nil
	}})

	reg.Add(Call{Path: "eraseQLog", Title: "clear the in-memory log ring", Fn: func(ctx context.Context, in Params) (Params, error) {
		d.Logger.Clear()
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "nodeStat", Title: "daemon + per-queue stats snapshot", Fn: func(ctx context.Context, in Params) (Params, error) {
		queues := Params{}
		for _, name := range d.QueueNames() {
			q := d.Queue(name)
			snap := q.Stats.Snapshot()
			cancelled, failed, errCount := q.Counters()
			queues[name] = Params{
				"state":     q.State().String(),
				"pending":   q.Pending(),
				"totals":    Params{"bytes": snap.TotalBytes, "files": snap.TotalFiles},
				"avgRateMbps": snap.AvgRateMbps,
				"cancelled": cancelled,
				"failed":    failed,
				"errors":    errCount,
			}
		}
		return Params{
			"name":    d.Name,
			"uptime":  time.Since(d.StartTime).String(),
			"queues":  queues,
			"recent":  strings.Join(d.Logger.Recent(), "\n"),
		}, nil
	}})
}

func (d *Daemon) setCfg(key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg == nil {
		d.cfg = make(map[string]string)
	}
	d.cfg[key] = value
}

func (d *Daemon) getCfg(key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.cfg[key]
	return v, ok
}

func (d *Daemon) listCfg() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys := make([]string, 0, len(d.cfg))
	for k := range d.cfg {
		keys = append(keys, k)
	}
	return keys
}
