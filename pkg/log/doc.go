/*
Package log provides structured logging for Vantage using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	writerLog := log.WithComponent("etl.writer")
	writerLog.Info().Int("rows", 5000).Msg("Batch flushed")

Ingestion runs carry a run ID through log.WithRunID so that interleaved runs
can be told apart in aggregated logs. Serving workers carry their worker ID
through log.WithWorkerID.
*/
package log
