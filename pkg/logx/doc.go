// Package logx wraps zerolog behind a small structured logging API.
//
// Components take a Logger by value; the zero value is a safe no-op. The
// Service variant fans log lines out to console, file and the notification
// chat, and can be re-pointed at runtime when the config reloads.
package logx
