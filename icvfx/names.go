// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package icvfx

// Name suffixes of the internal viewports. A camera's capture viewports
// are named after the camera, light-card captures after their target.
const (
	SuffixInCamera      = "_icvfx_incamera"
	SuffixChromakey     = "_icvfx_chromakey"
	SuffixLightcard     = "_icvfx_lightcard"
	SuffixLightcardOCIO = "_icvfx_lightcard_ocio"
)

// InCameraViewportID returns the id of the camera capture viewport.
func InCameraViewportID(cameraID string) string { return cameraID + SuffixInCamera }

// ChromakeyViewportID returns the id of the chromakey capture viewport.
func ChromakeyViewportID(cameraID string) string { return cameraID + SuffixChromakey }

// LightcardViewportID returns the id of a target's light-card capture.
func LightcardViewportID(targetID string) string { return targetID + SuffixLightcard }

// LightcardOCIOViewportID returns the id of a target's color-corrected
// light-card capture.
func LightcardOCIOViewportID(targetID string) string { return targetID + SuffixLightcardOCIO }
