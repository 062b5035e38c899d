// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package seriamp is the device-independent engine shared by the receiver and
// amplifier clients.
//
// A Client owns one Transport and a Protocol. Dispatch writes a request, then
// reads frames until one correlates with it; every other frame is treated as a
// pushed status update and merged into the ResponseCache. Transient failures
// are retried with a jittered backoff, forgetting an autodetected device path
// between attempts so the Detector can find the device again.
//
// The codec helpers (checksums, linear sequences, half-dB volume scales and
// frame scanning) are shared by the protocol packages.
package seriamp
