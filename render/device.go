// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"github.com/gogpu/gpucontext"
)

// DeviceHandle provides GPU device access from the host application.
//
// The render package receives the device from the host; it never creates
// one. FromProvider turns a DeviceHandle into a Context when the host also
// exposes its HAL device and queue:
//
//	type hostDevice struct{ app *gogpu.App }
//
//	func (h hostDevice) HalDevice() any { return h.app.HalDevice() }
//	func (h hostDevice) HalQueue() any  { return h.app.HalQueue() }
//
// DeviceHandle is an alias for gpucontext.DeviceProvider, so any provider
// from the gpucontext ecosystem can be passed in directly.
type DeviceHandle = gpucontext.DeviceProvider
