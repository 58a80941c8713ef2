// Package config parses the DTS node configuration file: an ASCII,
// one-option-per-line format where indentation is significant — a
// top-level key/value defines the node instance, and a nested "queue"
// block defines one queue (spec.md §6). The wire grammar itself is an
// explicit spec.md Non-goal; only the option set it must express is
// fixed, so the parser below is a small hand-rolled indentation-stack
// scanner, matching the way the teacher hand-rolls its own non-
// standard backend option decoding rather than pulling in a generic
// config library for a bespoke format.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// NodeConfig is the top-level DTS instance configuration.
type NodeConfig struct {
	Name        string
	Host        string
	Port        int
	Root        string
	LoPort      int
	HiPort      int
	Contact     int
	Network     string
	DBFile      string
	LogFile     string
	Monitor     string
	OpsPassword string

	Verbose bool
	Debug   bool

	Queues []QueueConfig
}

// QueueConfig is one "queue" block.
type QueueConfig struct {
	Name   string
	Node   string // ingest | transfer | endpoint
	Type   string // normal | scheduled | priority
	Mode   string // push | give
	Method string // dts | udt
	Port   int

	NThreads  int
	KeepAlive bool
	Purge     bool
	Src       string
	Dest      string

	DeliveryDir string
	DeliveryCmd string
	DeliverAs   string

	UDTRate  int
	Interval int
	STime    string

	// DeliveryPolicy and ChecksumPolicy default per spec.md §3; empty
	// means "use the default" and is resolved by the caller.
	DeliveryPolicy string
	ChecksumPolicy string

	// DiskFloor (bytes) and Ceiling (spool entry count) back initTransfer's
	// back-pressure check (spec.md §4.5): zero means no floor/ceiling.
	DiskFloor int64
	Ceiling   int
}

// Load parses a node configuration file at path.
func Load(path string) (*NodeConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a node configuration from r.
func Parse(r io.Reader) (*NodeConfig, error) {
	cfg := &NodeConfig{}
	var cur *QueueConfig

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		indent := len(raw) - len(strings.TrimLeft(raw, " \t"))

		if trimmed == "queue" || strings.HasPrefix(trimmed, "queue ") {
			if cur != nil {
				cfg.Queues = append(cfg.Queues, *cur)
			}
			cur = &QueueConfig{NThreads: 1}
			continue
		}

		key, value, ok := strings.Cut(trimmed, " ")
		if !ok {
			key, value, ok = strings.Cut(trimmed, "=")
		}
		if !ok {
			return nil, fmt.Errorf("config: line %d: malformed option %q", lineNo, trimmed)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(strings.TrimPrefix(value, "="))

		if indent > 0 && cur != nil {
			if err := applyQueueField(cur, key, value); err != nil {
				return nil, fmt.Errorf("config: line %d: %w", lineNo, err)
			}
		} else {
			if cur != nil {
				cfg.Queues = append(cfg.Queues, *cur)
				cur = nil
			}
			if err := applyNodeField(cfg, key, value); err != nil {
				return nil, fmt.Errorf("config: line %d: %w", lineNo, err)
			}
		}
	}
	if cur != nil {
		cfg.Queues = append(cfg.Queues, *cur)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, Validate(cfg)
}

func applyNodeField(cfg *NodeConfig, key, value string) error {
	switch key {
	case "name":
		cfg.Name = value
	case "host":
		cfg.Host = value
	case "port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Port = n
	case "root":
		cfg.Root = value
	case "loPort":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.LoPort = n
	case "hiPort":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.HiPort = n
	case "contact":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Contact = n
	case "network":
		cfg.Network = value
	case "dbfile":
		cfg.DBFile = value
	case "logfile":
		cfg.LogFile = value
	case "monitor":
		cfg.Monitor = value
	case "opsPassword":
		cfg.OpsPassword = value
	case "verbose":
		cfg.Verbose = parseBool(value)
	case "debug":
		cfg.Debug = parseBool(value)
	default:
		return fmt.Errorf("unknown node option %q", key)
	}
	return nil
}

func applyQueueField(q *QueueConfig, key, value string) error {
	switch key {
	case "name":
		q.Name = value
	case "node":
		q.Node = value
	case "type":
		q.Type = value
	case "mode":
		q.Mode = value
	case "method":
		q.Method = value
	case "port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		q.Port = n
	case "nthreads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		q.NThreads = n
	case "keepalive":
		q.KeepAlive = parseBool(value)
	case "purge":
		q.Purge = parseBool(value)
	case "src":
		q.Src = value
	case "dest":
		q.Dest = value
	case "deliveryDir":
		q.DeliveryDir = value
	case "deliveryCmd":
		q.DeliveryCmd = value
	case "deliverAs":
		q.DeliverAs = value
	case "udt_rate":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		q.UDTRate = n
	case "interval":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		q.Interval = n
	case "stime":
		q.STime = value
	case "deliveryPolicy":
		q.DeliveryPolicy = value
	case "checksumPolicy":
		q.ChecksumPolicy = value
	case "diskFloor":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		q.DiskFloor = n
	case "ceiling":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		q.Ceiling = n
	default:
		return fmt.Errorf("unknown queue option %q", key)
	}
	return nil
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "yes" || s == "1" || s == "on"
}

// Validate checks the required keys of spec.md §6 and the queue
// invariants of spec.md §3 (i)/(ii): src=="start" iff role==ingest,
// dest=="end" iff role==endpoint.
func Validate(cfg *NodeConfig) error {
	if cfg.Name == "" || cfg.Host == "" || cfg.Port == 0 || cfg.Root == "" {
		return fmt.Errorf("config: name, host, port and root are required")
	}
	for i := range cfg.Queues {
		q := &cfg.Queues[i]
		if q.Name == "" {
			return fmt.Errorf("config: queue missing name")
		}
		switch q.Node {
		case "ingest", "transfer", "endpoint":
		default:
			return fmt.Errorf("config: queue %q: invalid node role %q", q.Name, q.Node)
		}
		isIngest := q.Src == "" || q.Src == "start"
		if isIngest != (q.Node == "ingest") {
			return fmt.Errorf("config: queue %q: src=%q inconsistent with node=%q", q.Name, q.Src, q.Node)
		}
		isEndpoint := q.Dest == "" || q.Dest == "end"
		if isEndpoint != (q.Node == "endpoint") {
			return fmt.Errorf("config: queue %q: dest=%q inconsistent with node=%q", q.Name, q.Dest, q.Node)
		}
		switch q.Type {
		case "", "normal", "scheduled", "priority":
		default:
			return fmt.Errorf("config: queue %q: invalid type %q", q.Name, q.Type)
		}
		switch q.Mode {
		case "", "push", "give":
		default:
			return fmt.Errorf("config: queue %q: invalid mode %q", q.Name, q.Mode)
		}
		switch q.Method {
		case "", "dts", "udt":
		default:
			return fmt.Errorf("config: queue %q: invalid method %q", q.Name, q.Method)
		}
		if q.NThreads <= 0 {
			q.NThreads = 1
		}
	}
	return nil
}
