// Package command implements dtsq's cobra root command: the
// submitter front end that drives one file through the four-step
// handshake against a running dtsd, with client-side recovery for
// submissions that never reach a daemon (spec.md §4.9).
package command

import (
	"fmt"
	"os"

	"github.com/dts-project/dts/recovery"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var commandDefinition = &cobra.Command{
	Use:   "dtsq host:port queue file",
	Short: "Submit a file to a DTS queue",
	Long: `
dtsq submits a single file to a named queue on a running dtsd,
driving the same four-step handshake (initTransfer, bulk transfer,
queueSetControl, endTransfer) a queue's own forward() step uses. A
submission that cannot complete is logged under ~/.dtsq/<queue>/ for
later replay with --recover.`,
	RunE: runDtsq,
}

func init() {
	cmdFlags := commandDefinition.Flags()
	cmdFlags.IntP("nthreads", "n", 1, "number of stripe connections for the bulk transfer")
	cmdFlags.String("method", "dts", "bulk transport method: dts or udt")
	cmdFlags.String("checksum", "stripe", "checksum policy: none, packet, chunk or stripe")
	cmdFlags.Float64("udt-rate", 0, "UDT rate cap in Mbps (0 = unlimited)")
	cmdFlags.Bool("recover", false, "replay previously failed submissions for this queue instead of submitting a new file")
	cmdFlags.Bool("all-hosts", false, "with --recover, replay entries submitted from any host, not just this one")
}

// Command returns dtsq's root cobra command.
func Command() *cobra.Command { return commandDefinition }

func runDtsq(command *cobra.Command, args []string) error {
	recoverMode, _ := command.Flags().GetBool("recover")
	if recoverMode {
		if len(args) != 1 {
			return fmt.Errorf("dtsq: --recover takes exactly one argument, the queue name")
		}
		allHosts, _ := command.Flags().GetBool("all-hosts")
		return runRecover(command, args[0], allHosts)
	}

	if len(args) != 3 {
		return fmt.Errorf("dtsq: usage: dtsq host:port queue file")
	}
	opt := submitOptions{Host: args[0], Queue: args[1], Path: args[2]}
	opt.NThreads, _ = command.Flags().GetInt("nthreads")
	opt.Method, _ = command.Flags().GetString("method")
	opt.Checksum, _ = command.Flags().GetString("checksum")
	opt.UDTRate, _ = command.Flags().GetFloat64("udt-rate")

	if err := submitFile(command.Context(), opt); err != nil {
		return recordFailure(opt, err)
	}
	return nil
}

// recordFailure logs a failed submission and appends it to the
// queue's Recover file for a later --recover pass (spec.md §4.9).
func recordFailure(opt submitOptions, cause error) error {
	dir, dirErr := recovery.Dir(opt.Queue)
	if dirErr != nil {
		return fmt.Errorf("%w (also failed to open recovery dir: %v)", cause, dirErr)
	}
	_ = recovery.AppendLog(dir, cause.Error())
	entry := recovery.Entry{Host: opt.Host, Path: opt.Path, Flags: submissionFlags(opt)}
	if err := recovery.AppendRecover(dir, entry); err != nil {
		return fmt.Errorf("%w (also failed to record for recovery: %v)", cause, err)
	}
	_ = recovery.MirrorOffline(dir)
	return cause
}

// submissionFlags renders the non-default options of opt the same way
// a fresh dtsq invocation would take them, so a replayed Entry is
// indistinguishable from the original attempt.
func submissionFlags(opt submitOptions) []string {
	var flags []string
	if opt.NThreads != 1 {
		flags = append(flags, fmt.Sprintf("--nthreads=%d", opt.NThreads))
	}
	if opt.Method != "" && opt.Method != "dts" {
		flags = append(flags, fmt.Sprintf("--method=%s", opt.Method))
	}
	if opt.Checksum != "" && opt.Checksum != "stripe" {
		flags = append(flags, fmt.Sprintf("--checksum=%s", opt.Checksum))
	}
	if opt.UDTRate != 0 {
		flags = append(flags, fmt.Sprintf("--udt-rate=%g", opt.UDTRate))
	}
	return flags
}

func runRecover(command *cobra.Command, queueName string, allHosts bool) error {
	dir, err := recovery.Dir(queueName)
	if err != nil {
		return err
	}
	localHost, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("dtsq: resolve local hostname: %w", err)
	}

	remaining, err := recovery.Replay(dir, localHost, allHosts, func(e recovery.Entry) error {
		opt := parseEntryOptions(queueName, e)
		return submitFile(command.Context(), opt)
	})
	if err != nil {
		return err
	}
	fmt.Printf("dtsq: %d entries remain in %s/Recover\n", len(remaining), dir)
	return nil
}

// parseEntryOptions rebuilds a submitOptions from a recovered Entry,
// parsing its stored flag tokens with the same flag set dtsq's own
// command uses so a replay takes identical transport parameters.
func parseEntryOptions(queueName string, e recovery.Entry) submitOptions {
	fs := pflag.NewFlagSet("dtsq-recover", pflag.ContinueOnError)
	nthreads := fs.IntP("nthreads", "n", 1, "")
	method := fs.String("method", "dts", "")
	csum := fs.String("checksum", "stripe", "")
	udtRate := fs.Float64("udt-rate", 0, "")
	_ = fs.Parse(e.Flags)

	return submitOptions{
		Host:     e.Host,
		Queue:    queueName,
		Path:     e.Path,
		NThreads: *nthreads,
		Method:   *method,
		Checksum: *csum,
		UDTRate:  *udtRate,
	}
}
