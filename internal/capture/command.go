// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package capture

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/tomtom215/packetlens/internal/config"
)

// Capture modes.
const (
	ModePacket   = "packet"
	ModeFlow     = "flow"
	ModeSyscalls = "syscalls"
)

// Run environments.
const (
	EnvLocal  = "local"
	EnvRemote = "remote"
)

var (
	// ErrUnknownMode is returned for capture modes without a tool.
	ErrUnknownMode = errors.New("unknown capture mode")

	// ErrRemoteTarget is returned when a remote capture has no user or host.
	ErrRemoteTarget = errors.New("remote capture requires ssh username and host")
)

// FlowFields are the tshark fields requested for text flow capture, in
// column order.
var FlowFields = []string{
	"frame.time_epoch",
	"ip.src",
	"ip.dst",
	"tcp.srcport",
	"tcp.dstport",
	"udp.srcport",
	"udp.dstport",
	"_ws.col.Protocol",
	"frame.len",
	"ip.ttl",
}

// BuildCommand returns the argv that runs the capture tool for the given
// configuration. Remote captures are wrapped in an ssh invocation.
func BuildCommand(capture config.CaptureConfig, ssh config.SSHConfig) ([]string, error) {
	remote := capture.RunEnvironment == EnvRemote

	tshark := pick(capture.TsharkPath, "tshark")
	sysdig := pick(capture.SysdigPath, "sysdig")
	if remote {
		tshark = pick(ssh.TsharkPath, "tshark")
		sysdig = pick(ssh.SysdigPath, "sysdig")
	}

	var tool []string
	switch capture.Mode {
	case ModePacket:
		tool = append([]string{tshark, "-l"}, interfaceArgs(capture.Interface)...)
		tool = append(tool, "-T", "ek")
	case ModeFlow:
		tool = append([]string{tshark, "-l"}, interfaceArgs(capture.Interface)...)
		if capture.OutputIsStructured {
			tool = append(tool, "-T", "ek")
		} else {
			tool = append(tool, "-T", "fields", "-E", "separator=,", "-E", "header=y")
			for _, f := range FlowFields {
				tool = append(tool, "-e", f)
			}
		}
	case ModeSyscalls:
		tool = []string{sysdig, "-j"}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, capture.Mode)
	}

	if !remote {
		return tool, nil
	}
	if ssh.Username == "" || ssh.Host == "" {
		return nil, ErrRemoteTarget
	}

	argv := []string{"ssh", "-o", "BatchMode=yes"}
	if ssh.Port > 0 {
		argv = append(argv, "-p", strconv.Itoa(ssh.Port))
	}
	if ssh.IdentityFile != "" {
		argv = append(argv, "-i", ssh.IdentityFile)
	}
	argv = append(argv, ssh.Username+"@"+ssh.Host)
	if ssh.UseSudo {
		argv = append(argv, "sudo", "-n")
	}
	return append(argv, tool...), nil
}

func interfaceArgs(iface string) []string {
	if iface == "" {
		return nil
	}
	return []string{"-i", iface}
}

func pick(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
