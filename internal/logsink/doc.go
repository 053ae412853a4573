// Package logsink turns received payloads into human-readable lines and
// appends them to the monitor's log file.
package logsink
