package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	initLogger sync.Once
	stdout     *log.Logger
)

// Logger returns the process-wide logger. Output is one JSON object per
// line on stdout; the log package's own prefix and flags stay off so the
// line is valid JSON from the first byte.
func Logger() *log.Logger {
	initLogger.Do(func() {
		stdout = log.New(os.Stdout, "", 0)
	})
	return stdout
}

// LogRequest marshals entry and writes it as a single log line.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
