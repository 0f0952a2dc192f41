package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogOp emits a structured JSON line describing a completed domain operation.
func LogOp(op string, err error, fields map[string]any) {
	entry := map[string]any{
		"ts": time.Now().UTC().Format(time.RFC3339Nano),
		"op": op,
	}
	if err != nil {
		entry["level"] = "error"
		entry["error"] = err.Error()
	} else {
		entry["level"] = "info"
	}
	for k, v := range fields {
		entry[k] = v
	}
	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		Logger().Println(`{"level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
