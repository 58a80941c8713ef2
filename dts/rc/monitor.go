package rc

import (
	"context"
	"fmt"
)

// registerMonitor wires the monitor-facing verbs of spec.md §6: monitor
// (drain queued status lines), console (attach an interactive session,
// gated by the console_passwd config key when one is set), and detach
// (end a console session). The monitor channel is fed only through
// notify; monitor() itself only ever drains it, never blocks waiting
// for new entries.
func (d *Daemon) registerMonitor(reg *Registry) {
	reg.Add(Call{Path: "monitor", Fn: func(ctx context.Context, in Params) (Params, error) {
		var lines []string
	drain:
		for {
			select {
			case line := <-d.monitorCh:
				lines = append(lines, line)
			default:
				break drain
			}
		}
		return Params{"lines": lines}, nil
	}})

	reg.Add(Call{Path: "console", Fn: func(ctx context.Context, in Params) (Params, error) {
		passwd, err := in.GetString("passwd")
		if err != nil {
			return nil, err
		}
		expect, found := d.getCfg("console_passwd")
		if found && passwd != expect {
			return nil, fmt.Errorf("rc: console: bad password")
		}
		return Params{"attached": true, "queues": d.QueueNames()}, nil
	}})

	reg.Add(Call{Path: "detach", Fn: func(ctx context.Context, in Params) (Params, error) {
		return Params{"ok": true}, nil
	}})
}

// notify pushes a line onto the monitor channel, dropping it if no
// monitor has drained recently enough to keep the channel from filling.
func (d *Daemon) notify(line string) {
	select {
	case d.monitorCh <- line:
	default:
	}
}
