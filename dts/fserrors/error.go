// Package fserrors defines the sentinel errors shared across the DTS
// engine and the helpers for classifying them at the RPC boundary.
package fserrors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Subsystems wrap these with fmt.Errorf("...: %w", ...)
// so callers can still errors.Is against the category while getting a
// specific message.
var (
	// ErrCorrupted marks an integrity (MD5/CRC/checksum) mismatch.
	ErrCorrupted = errors.New("integrity check failed")
	// ErrSpoolFull marks a queue that has hit its back-pressure ceiling.
	ErrSpoolFull = errors.New("queue spool full")
	// ErrDiskFull marks a disk free-space floor violation.
	ErrDiskFull = errors.New("insufficient free disk space")
	// ErrQueuePaused marks a queue not currently accepting transfers.
	ErrQueuePaused = errors.New("queue is not accepting transfers")
	// ErrQueueNotFound marks an unknown queue name.
	ErrQueueNotFound = errors.New("queue not found")
	// ErrPeerUnknown marks an unconfigured peer host.
	ErrPeerUnknown = errors.New("unknown peer")
	// ErrPortExhausted marks a failed bulk-port scan.
	ErrPortExhausted = errors.New("no free bulk ports available")
	// ErrTransferAborted marks a cancelled in-flight transfer.
	ErrTransferAborted = errors.New("transfer aborted")
	// ErrSandboxEscape marks a path that could not be safely confined.
	ErrSandboxEscape = errors.New("path escapes sandbox root")
	// ErrDeliveryFatalFile marks a delivery command exit status of 2.
	ErrDeliveryFatalFile = errors.New("delivery command: fatal for file")
	// ErrDeliveryFatalQueue marks a delivery command exit status of 3.
	ErrDeliveryFatalQueue = errors.New("delivery command: fatal for queue")
)

// IsErrorPrefixed reports whether the RPC result string begins with
// the legacy "Error" marker used by §4.4 of the handshake protocol.
func IsErrorPrefixed(s string) bool {
	return len(s) >= 5 && s[:5] == "Error"
}

// AsErrorString renders err as the "Error <message>" strings the RPC
// surface uses for synchronous failures (§7 protocol errors).
func AsErrorString(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %s", err.Error())
}

// DeliveryStatus classifies a delivery command's exit status into an
// action the queue manager should take, per spec.md §4.7 step 4.
type DeliveryStatus int

const (
	// DeliveryOK means continue normally.
	DeliveryOK DeliveryStatus = 0
	// DeliveryMinor is a non-fatal error; continue.
	DeliveryMinor DeliveryStatus = 1
	// DeliveryFatalFile rejects this file but keeps the queue running.
	DeliveryFatalFile DeliveryStatus = 2
	// DeliveryFatalQueue pauses the whole queue.
	DeliveryFatalQueue DeliveryStatus = 3
)

// ClassifyExitCode maps a delivery command's process exit code (or -1
// for "command not found") to a DeliveryStatus.
func ClassifyExitCode(code int) DeliveryStatus {
	switch code {
	case 0:
		return DeliveryOK
	case 1:
		return DeliveryMinor
	case 3:
		return DeliveryFatalQueue
	case -1:
		return DeliveryFatalFile
	default:
		return DeliveryFatalFile
	}
}

// Err returns the error associated with a DeliveryStatus, or nil for
// DeliveryOK/DeliveryMinor which are not fatal.
func (s DeliveryStatus) Err() error {
	switch s {
	case DeliveryFatalFile:
		return ErrDeliveryFatalFile
	case DeliveryFatalQueue:
		return ErrDeliveryFatalQueue
	default:
		return nil
	}
}
