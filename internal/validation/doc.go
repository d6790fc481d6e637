// Packetlens - Streaming Network Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/packetlens

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared by the configuration loader, the
// graph validator and the alert policy stores so struct metadata is parsed
// once per type.
//
// # Usage
//
//	type Policy struct {
//	    Key         string `validate:"required"`
//	    Threshold   int    `validate:"gte=1"`
//	    TargetEmail string `validate:"required,email"`
//	}
//
//	if verr := validation.ValidateStruct(&p); verr != nil {
//	    return fmt.Errorf("invalid alert policy: %w", verr)
//	}
//
// Field names in messages are namespaced from the root struct, so a failing
// Config.Logging.Format is reported as "Logging.Format".
//
// # Custom Tags
//
//   - portnum: an integer in 1..65535
package validation
