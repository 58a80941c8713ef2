package rc

import (
	"context"
	"fmt"

	"github.com/dts-project/dts/queue"
)

func (d *Daemon) mustQueue(in Params) (*queue.Queue, error) {
	name, err := in.GetString("qname")
	if err != nil {
		return nil, err
	}
	q := d.Queue(name)
	if q == nil {
		return nil, fmt.Errorf("rc: unknown queue %q", name)
	}
	return q, nil
}

// registerQueueControl wires the queue-control verbs of spec.md §6:
// startQueue, pauseQueue, flushQueue, restartQueue, shutdownQueue,
// pokeQueue, listQueue, addToQueue, removeFromQueue, getQueueStat,
// setQueueStat, getQueueCount, setQueueCount, getQueueDir, setQueueDir,
// getQueueCmd, setQueueCmd, getCopyDir, execCmd, printQueueCfg.
func (d *Daemon) registerQueueControl(reg *Registry) {
	reg.Add(Call{Path: "startQueue", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		q.Start()
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "pauseQueue", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		q.Pause()
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "flushQueue", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		q.Drain()
		q.Stats.IncFlush()
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "restartQueue", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		q.Pause()
		q.Start()
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "shutdownQueue", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		q.Shutdown()
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "pokeQueue", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		q.Poke()
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "listQueue", Fn: func(ctx context.Context, in Params) (Params, error) {
		return Params{"queues": d.QueueNames()}, nil
	}})

	reg.Add(Call{Path: "addToQueue", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		q.IncPending()
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "removeFromQueue", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		q.DecPending()
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "getQueueStat", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		snap := q.Stats.Snapshot()
		var out Params
		if err := Reshape(&out, snap); err != nil {
			return nil, err
		}
		return out, nil
	}})

	reg.Add(Call{Path: "setQueueStat", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		if msg, err := in.GetString("error"); err == nil {
			q.Stats.IncError(msg)
		}
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "getQueueCount", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		return Params{"count": q.Pending()}, nil
	}})

	reg.Add(Call{Path: "setQueueCount", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		n, err := in.GetInt64("count")
		if err != nil {
			return nil, err
		}
		for q.Pending() < int(n) {
			q.IncPending()
		}
		for q.Pending() > int(n) {
			q.DecPending()
		}
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "getQueueDir", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		return Params{"dir": q.Config.DeliveryDir}, nil
	}})

	reg.Add(Call{Path: "setQueueDir", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		dir, err := in.GetString("dir")
		if err != nil {
			return nil, err
		}
		q.Config.DeliveryDir = dir
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "getQueueCmd", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		return Params{"cmd": q.Config.DeliveryCmd}, nil
	}})

	reg.Add(Call{Path: "setQueueCmd", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		cmd, err := in.GetString("cmd")
		if err != nil {
			return nil, err
		}
		q.Config.DeliveryCmd = cmd
		return Params{"ok": true}, nil
	}})

	reg.Add(Call{Path: "getCopyDir", Fn: func(ctx context.Context, in Params) (Params, error) {
		return Params{"dir": d.Sandbox.Resolve("copy")}, nil
	}})

	reg.Add(Call{Path: "execCmd", Fn: func(ctx context.Context, in Params) (Params, error) {
		return nil, fmt.Errorf("rc: execCmd: arbitrary remote command execution is not exposed by this daemon")
	}})

	reg.Add(Call{Path: "printQueueCfg", Fn: func(ctx context.Context, in Params) (Params, error) {
		q, err := d.mustQueue(in)
		if err != nil {
			return nil, err
		}
		var out Params
		if err := Reshape(&out, q.Config); err != nil {
			return nil, err
		}
		return out, nil
	}})
}
