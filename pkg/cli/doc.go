// Package cli holds terminal helpers shared by the duet commands: status
// printing, YAML/JSON output, persona file loading, and lipgloss boxes for
// turn banners and session summaries.
package cli
