// Package logging provides structured logging for the scale telemetry service.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - Text output by default, JSON for log shippers
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Optional copy of every line to a file in a log directory
//
// # Configuration
//
//	logging:
//	  level: "info"                 # debug, info, warn, error
//	  format: "text"                # json, text
//	  output: "stdout"              # stdout, stderr
//	  dir: "logs"                   # LOG_DIR; empty disables the file
//	  file: "scale_telemetry.log"
//
// # Usage
//
//	logger, err := logging.New(cfg.Logging, "1.0.0")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//	logger.Info("device connected", "device_id", "scale-01")
//
// Never log broker passwords.
package logging
