package delivery

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dts-project/dts/control"
	"github.com/dts-project/dts/fserrors"
	"github.com/dts-project/dts/queue"
)

// Config is the per-queue delivery configuration (spec.md §3, §6).
type Config struct {
	QueueName   string
	DeliveryDir string
	DeliveryCmd string
	DeliverAs   string
	Policy      queue.DeliveryPolicy
}

// resolveCollision applies deliveryPolicy to the path TargetPath
// computed, deciding what happens when a file of that name already
// sits in the delivery directory (spec.md §3's replace/number/original
// policies):
//   - replace (also any empty or unrecognised policy): overwrite in
//     place, no renaming.
//   - number: append the lowest unused ".N" suffix.
//   - original: ignore deliverAs entirely and deliver under the
//     spooled file's own name, trusting the sender to have made it
//     unique.
func resolveCollision(policy queue.DeliveryPolicy, deliveryDir, target string, rec *control.Record) string {
	switch policy {
	case queue.DeliveryOriginal:
		return filepath.Join(deliveryDir, rec.Filename)
	case queue.DeliveryNumber:
		if _, err := os.Stat(target); err != nil {
			return target
		}
		for n := 1; ; n++ {
			candidate := fmt.Sprintf("%s.%d", target, n)
			if _, err := os.Stat(candidate); err != nil {
				return candidate
			}
		}
	default:
		return target
	}
}

// Deliver runs the full endpoint delivery sequence of spec.md §4.7 for
// one spooled file: target-path computation, directory preparation,
// the retried copy, the delivery command (or dts.null), the .par
// fold-back, and the history append.
func Deliver(cfg Config, spoolDir string, rec *control.Record) Result {
	target := TargetPath(cfg.DeliveryDir, cfg.DeliverAs, rec)
	target = resolveCollision(cfg.Policy, cfg.DeliveryDir, target, rec)

	if err := PrepareDir(cfg.DeliveryDir); err != nil {
		return fail(cfg.QueueName, rec, target, err)
	}

	src := filepath.Join(spoolDir, rec.Filename)
	if err := CopyToTarget(src, target); err != nil {
		return fail(cfg.QueueName, rec, target, err)
	}

	if cfg.DeliveryCmd == "" {
		return succeed(cfg.QueueName, rec, target, "")
	}

	if cfg.DeliveryCmd == NullCommand {
		if err := DeleteDelivered(target); err != nil {
			return fail(cfg.QueueName, rec, target, err)
		}
		return succeed(cfg.QueueName, rec, target, NullCommand)
	}

	exitCode, err := RunCommand(cfg.DeliveryCmd, cfg.DeliveryDir, target, rec)
	if err != nil {
		return fail(cfg.QueueName, rec, target, err)
	}

	if err := ApplyParFile(cfg.DeliveryDir, cfg.QueueName, rec); err != nil {
		return fail(cfg.QueueName, rec, target, err)
	}

	status := fserrors.ClassifyExitCode(exitCode)
	result := Result{Status: status, TargetPath: target, CommandUsed: cfg.DeliveryCmd}
	ok := status == fserrors.DeliveryOK || status == fserrors.DeliveryMinor
	msg := ""
	if !ok {
		msg = status.Err().Error()
	}
	rec.AppendHistory(cfg.QueueName, ok, time.Now().UTC().Format(time.RFC3339), msg)
	return result
}

func succeed(qname string, rec *control.Record, target, cmd string) Result {
	rec.AppendHistory(qname, true, time.Now().UTC().Format(time.RFC3339), "")
	return Result{Status: fserrors.DeliveryOK, TargetPath: target, CommandUsed: cmd}
}

func fail(qname string, rec *control.Record, target string, err error) Result {
	rec.AppendHistory(qname, false, time.Now().UTC().Format(time.RFC3339), err.Error())
	return Result{Status: fserrors.DeliveryFatalFile, TargetPath: target}
}
