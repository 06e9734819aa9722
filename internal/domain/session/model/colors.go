// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

// groupPalette is the fixed color rotation assigned to groups created
// without an explicit color.
var groupPalette = []string{
	"#6366F1", // indigo
	"#10B981", // emerald
	"#F59E0B", // amber
	"#EF4444", // red
	"#8B5CF6", // violet
	"#06B6D4", // cyan
	"#EC4899", // pink
	"#84CC16", // lime
}

// NextGroupColor returns the palette color for the i-th group. The index
// wraps, so every call returns a valid color.
func NextGroupColor(i int) string {
	if i < 0 {
		i = -i
	}
	return groupPalette[i%len(groupPalette)]
}
