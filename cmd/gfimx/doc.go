// Package main hosts the gfimx CLI entrypoint and command graph.
//
// The Cobra command tree covers one-shot scans, the long-running agent,
// policy validation and distribution, broker log tailing, baseline
// inspection and export, and configuration scaffolding. Configuration is
// resolved once per invocation so subcommands only deal with presentation.
package main
