// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

/*
Package ingest decodes capture tool output into records ready for scoring.

Each capture mode has a decoder:

  - PacketDecoder reads tshark Elasticsearch-bulk JSON (-T ek) and emits
    one record per packet with src_ip, dst_ip, src_port, dst_port,
    protocol, length and ttl fields. Bulk index lines are skipped.
  - FlowDecoder reads either the same JSON or comma separated tshark field
    output, producing Observations that a FlowWindow aggregates per flow.
  - SyscallDecoder reads sysdig JSON (-j) and flattens every key, replacing
    dots with underscores (evt.type becomes evt_type).

A Processor wraps the decoder of a mode. Packet and syscall processors
emit one record per line. The flow processor emits a batch of flow
records each time its window boundary passes, either when a new
observation arrives after the boundary or on Tick.

Ports are UnknownPort (-1) for records without a transport layer.
*/
package ingest
