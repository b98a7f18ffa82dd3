// Package monitoring serves liveness and status endpoints next to the
// Prometheus metrics handler.
package monitoring

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/theawakener0/oxide/internal/logger"
)

var startTime = time.Now()

// Status is the health endpoint payload.
type Status struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Model     string    `json:"model,omitempty"`
	System    System    `json:"system"`
}

type System struct {
	Goroutines  int    `json:"goroutines"`
	HeapAllocMB uint64 `json:"heap_alloc_mb"`
	NumCPU      int    `json:"num_cpu"`
}

// modelRef is set once a session loads; read by the handler.
var modelRef atomic.Value

// SetModel records the loaded model for the health payload.
func SetModel(ref string) { modelRef.Store(ref) }

// Handler returns the /healthz handler.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		st := Status{
			Status:    "ok",
			Timestamp: time.Now().UTC(),
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			System: System{
				Goroutines:  runtime.NumGoroutine(),
				HeapAllocMB: mem.HeapAlloc / (1 << 20),
				NumCPU:      runtime.NumCPU(),
			},
		}
		if ref, ok := modelRef.Load().(string); ok {
			st.Model = ref
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(st); err != nil {
			logger.Log.Warn("health encode failed", "error", err.Error())
		}
	})
}
