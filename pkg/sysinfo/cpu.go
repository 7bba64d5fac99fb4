// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sysinfo reports host capabilities used to pick engine
// binaries and size hash tables.
package sysinfo

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Features describes the CPU capabilities engine builds key on.
// Engines commonly ship sse41, popcnt, avx2, bmi2, and avx512
// variants; the strongest supported one wins.
type Features struct {
	Arch    string `json:"arch"`
	Cores   int    `json:"cores"`
	SSE41   bool   `json:"sse41"`
	POPCNT  bool   `json:"popcnt"`
	AVX2    bool   `json:"avx2"`
	BMI2    bool   `json:"bmi2"`
	AVX512  bool   `json:"avx512"`
	NEON    bool   `json:"neon"`
	DotProd bool   `json:"dotprod"`
}

// CPUFeatures probes the running host. Feature flags for other
// architectures report false.
func CPUFeatures() Features {
	return Features{
		Arch:    runtime.GOARCH,
		Cores:   runtime.NumCPU(),
		SSE41:   cpu.X86.HasSSE41,
		POPCNT:  cpu.X86.HasPOPCNT,
		AVX2:    cpu.X86.HasAVX2,
		BMI2:    cpu.X86.HasBMI2,
		AVX512:  cpu.X86.HasAVX512F && cpu.X86.HasAVX512BW,
		NEON:    cpu.ARM64.HasASIMD,
		DotProd: cpu.ARM64.HasASIMDDP,
	}
}
