// Package logs reads the daemon log file for the CLI logs command.
package logs
