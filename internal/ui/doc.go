// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow over the activity cache:
//  1. [ActivityListView] : Browse cached activities
//  2. [DetailView] : Inspect one track (points, length, bounds, encoded size)
//  3. [ConfirmView] : Confirm a heatmap build
//  4. [BuildView] : Monitor real-time progress updates
//  5. [ResultView] : Display heatmap stats and the busiest segments
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the HeatmapEngine, providing non-blocking status reporting during builds.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, h, esc, y/n, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
