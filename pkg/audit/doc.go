// Package audit records role administration as structured events.
//
// Every write through the admin API produces one Event naming the actor,
// the role or user affected and, for permission changes, the before and
// after sets. Destinations implement Logger:
//
//	logger := audit.NewMultiLogger(
//		audit.NewLogLogger(appLogger),
//		fileLogger, // audit.NewFileLogger(audit.FileLoggerConfig{BasePath: "/var/log/gatekeeper"})
//	)
//
// FileLogger writes JSON lines and rotates by size, keeping a bounded
// number of rotated files.
package audit
