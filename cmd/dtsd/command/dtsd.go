// Package command implements dtsd's cobra root command: load a node
// configuration, open every queue's spool, and serve the RPC surface
// while a manager goroutine drains each queue (spec.md §3-§6).
package command

import (
	"context"
	"fmt"
	"net"

	"github.com/dts-project/dts/config"
	"github.com/dts-project/dts/control"
	"github.com/dts-project/dts/delivery"
	"github.com/dts-project/dts/log"
	"github.com/dts-project/dts/protocol"
	"github.com/dts-project/dts/queue"
	"github.com/dts-project/dts/rc"
	"github.com/dts-project/dts/sandbox"
	"github.com/dts-project/dts/transport"
	"github.com/spf13/cobra"
)

var commandDefinition = &cobra.Command{
	Use:   "dtsd",
	Short: "Run a DTS transfer daemon",
	Long: `
dtsd reads a node configuration file, opens every configured queue's
spool directory, and serves the RPC surface (initDTS, initTransfer,
queueSetControl, endTransfer, nodeStat, ...) over net/rpc/jsonrpc on
the node's command port (the config's port key). One goroutine per queue drains its spool:
delivering locally on an endpoint queue, forwarding to the next node
on an ingest or transfer queue.`,
	RunE: func(command *cobra.Command, args []string) error {
		configPath, err := command.Flags().GetString("config")
		if err != nil || configPath == "" {
			return fmt.Errorf("dtsd: --config is required")
		}
		verbose, _ := command.Flags().GetBool("verbose")
		debug, _ := command.Flags().GetBool("debug")

		ctx, cancel := context.WithCancel(command.Context())
		defer cancel()
		watchSignals(cancel)

		return run(ctx, configPath, verbose, debug)
	},
}

func init() {
	cmdFlags := commandDefinition.Flags()
	cmdFlags.StringP("config", "c", "", "path to the node configuration file")
	cmdFlags.BoolP("verbose", "v", false, "raise the log level to info")
	cmdFlags.BoolP("debug", "d", false, "raise the log level to debug")
}

// Command returns dtsd's root cobra command.
func Command() *cobra.Command { return commandDefinition }

func run(ctx context.Context, configPath string, verbose, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("dtsd: load config: %w", err)
	}

	logger := log.New(1024)
	logger.SetVerbose(verbose || cfg.Verbose)
	logger.SetDebug(debug || cfg.Debug)

	sb := sandbox.New(cfg.Root, cfg.OpsPassword)
	proto := protocol.NewNode(cfg.Root)
	daemon := rc.NewDaemon(cfg.Name, sb, proto, logger)
	daemon.SetBulkPortRange(cfg.Host, cfg.LoPort, cfg.HiPort)

	queues := make(map[string]*queue.Queue, len(cfg.Queues))
	for i := range cfg.Queues {
		qc := cfg.Queues[i]
		q := queue.New(queue.Config{
			Name:           qc.Name,
			Src:            qc.Src,
			Dest:           qc.Dest,
			Role:           queue.Role(qc.Node),
			Kind:           queue.Kind(qc.Type),
			Mode:           queue.Mode(qc.Mode),
			Method:         queue.Method(qc.Method),
			NThreads:       qc.NThreads,
			Port:           qc.Port,
			KeepAlive:      qc.KeepAlive,
			AutoPurge:      qc.Purge,
			DeliveryPolicy: queue.DeliveryPolicy(qc.DeliveryPolicy),
			ChecksumPolicy: queue.ChecksumPolicy(qc.ChecksumPolicy),
			DeliveryDir:    qc.DeliveryDir,
			DeliveryCmd:    qc.DeliveryCmd,
			DeliverAs:      qc.DeliverAs,
			UDTRateMbps:    qc.UDTRate,
			DiskFloor:      qc.DiskFloor,
			Ceiling:        qc.Ceiling,
			SpoolRoot:      proto.QueueRoot(qc.Name),
		})
		q.Start()
		daemon.AddQueue(q)
		queues[qc.Name] = q
	}

	reg := rc.NewRegistry()
	daemon.RegisterAll(reg)

	managers := make([]*queue.Manager, 0, len(cfg.Queues))
	for i := range cfg.Queues {
		qc := cfg.Queues[i]
		q := queues[qc.Name]
		managers = append(managers, queue.NewManager(q, hooksFor(qc, q, logger)))
	}

	for _, m := range managers {
		go m.Run(ctx)
	}

	server := rc.NewServer(reg, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	logger.For("dtsd", cfg.Name).Infof("serving on %s", addr)
	return server.ListenAndServe(ctx, addr)
}

// hooksFor builds the manager Hooks for one queue: Deliver for an
// endpoint queue, Forward for ingest/transfer (spec.md §4.6, §4.7).
func hooksFor(qc config.QueueConfig, q *queue.Queue, logger *log.Logger) queue.Hooks {
	if q.Role == queue.RoleEndpoint {
		delivCfg := delivery.Config{
			QueueName:   qc.Name,
			DeliveryDir: qc.DeliveryDir,
			DeliveryCmd: qc.DeliveryCmd,
			DeliverAs:   qc.DeliverAs,
			Policy:      queue.DeliveryPolicy(qc.DeliveryPolicy),
		}
		return queue.Hooks{
			Deliver: func(dir string, rec *control.Record) error {
				res := delivery.Deliver(delivCfg, dir, rec)
				// res.Status.Err() is nil for DeliveryOK/DeliveryMinor and
				// a sentinel-wrapped error for DeliveryFatalFile/
				// DeliveryFatalQueue — process needs that distinction
				// intact to decide whether to pause the queue (spec.md
				// §4.7's exit-status table), so it is never collapsed here.
				return res.Status.Err()
			},
		}
	}

	destAddr := qc.Dest
	destHost, _, splitErr := net.SplitHostPort(destAddr)
	if splitErr != nil {
		destHost = destAddr
	}
	limiter := transport.NewUDTLimiter(float64(qc.UDTRate))
	method := q.Method.ToTransport()
	policy := q.ChecksumPolicy.ToTransport()

	return queue.Hooks{
		Forward: func(dir string, rec *control.Record) error {
			client, err := rc.Dial(destAddr)
			if err != nil {
				return fmt.Errorf("dtsd: dial %s: %w", destAddr, err)
			}
			defer client.Close()

			peer := rc.NewPeerClient(client, destHost, rec, qc.NThreads)
			_, err = protocol.Forward(context.Background(), peer, qc.Name, rec, dir, method, qc.NThreads, policy, limiter)
			if err != nil {
				logger.For("queue", qc.Name).WithError(err).Warn("forward failed")
			}
			return err
		},
	}
}
