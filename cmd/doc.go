// Package cmd contains the CLI commands for calbot.
package cmd
