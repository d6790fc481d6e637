// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

package capture

import (
	"errors"
	"strings"
	"testing"

	"github.com/tomtom215/packetlens/internal/config"
)

func TestBuildCommand(t *testing.T) {
	tests := []struct {
		name    string
		capture config.CaptureConfig
		ssh     config.SSHConfig
		want    string
	}{
		{
			name:    "local packet",
			capture: config.CaptureConfig{Mode: ModePacket, RunEnvironment: EnvLocal, Interface: "eth0"},
			want:    "tshark -l -i eth0 -T ek",
		},
		{
			name:    "local packet without interface",
			capture: config.CaptureConfig{Mode: ModePacket, RunEnvironment: EnvLocal},
			want:    "tshark -l -T ek",
		},
		{
			name:    "local structured flow",
			capture: config.CaptureConfig{Mode: ModeFlow, RunEnvironment: EnvLocal, OutputIsStructured: true, TsharkPath: "/opt/ws/tshark"},
			want:    "/opt/ws/tshark -l -T ek",
		},
		{
			name:    "local text flow",
			capture: config.CaptureConfig{Mode: ModeFlow, RunEnvironment: EnvLocal},
			want:    "tshark -l -T fields -E separator=, -E header=y -e " + strings.Join(FlowFields, " -e "),
		},
		{
			name:    "local syscalls",
			capture: config.CaptureConfig{Mode: ModeSyscalls, RunEnvironment: EnvLocal, Interface: "eth0"},
			want:    "sysdig -j",
		},
		{
			name:    "remote packet with sudo",
			capture: config.CaptureConfig{Mode: ModePacket, RunEnvironment: EnvRemote, Interface: "ens3", TsharkPath: "/local/tshark"},
			ssh:     config.SSHConfig{Username: "ops", Host: "sensor-1", Port: 2222, IdentityFile: "/keys/id", UseSudo: true},
			want:    "ssh -o BatchMode=yes -p 2222 -i /keys/id ops@sensor-1 sudo -n tshark -l -i ens3 -T ek",
		},
		{
			name:    "remote syscalls with tool path",
			capture: config.CaptureConfig{Mode: ModeSyscalls, RunEnvironment: EnvRemote},
			ssh:     config.SSHConfig{Username: "ops", Host: "10.0.0.5", SysdigPath: "/usr/local/bin/sysdig"},
			want:    "ssh -o BatchMode=yes ops@10.0.0.5 /usr/local/bin/sysdig -j",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			argv, err := BuildCommand(tt.capture, tt.ssh)
			if err != nil {
				t.Fatalf("BuildCommand() error = %v", err)
			}
			if got := strings.Join(argv, " "); got != tt.want {
				t.Errorf("BuildCommand() = %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestBuildCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		capture config.CaptureConfig
		ssh     config.SSHConfig
		wantErr error
	}{
		{
			name:    "unknown mode",
			capture: config.CaptureConfig{Mode: "netflow", RunEnvironment: EnvLocal},
			wantErr: ErrUnknownMode,
		},
		{
			name:    "remote without host",
			capture: config.CaptureConfig{Mode: ModePacket, RunEnvironment: EnvRemote},
			ssh:     config.SSHConfig{Username: "ops"},
			wantErr: ErrRemoteTarget,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildCommand(tt.capture, tt.ssh)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("BuildCommand() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
