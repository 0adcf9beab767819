package monitoring

import "log"

// Logf carries the engine's diagnostic output: journal reader progress, ingest
// decisions, migration passes, HTTP request lines. It defaults to log.Printf;
// an embedding UI shell redirects it into its own log pane via SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps the diagnostic sink. Passing nil mutes the engine, which
// tests use to keep chatty ingest output off the terminal.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
