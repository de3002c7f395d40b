package server

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/capture"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// ProcessStats is the server process footprint reported on /healthz.
type ProcessStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	Threads    int32   `json:"threads"`
	Goroutines int     `json:"goroutines"`
}

func processStats() (ProcessStats, error) {
	st := ProcessStats{Goroutines: runtime.NumGoroutine()}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return st, err
	}
	if st.CPUPercent, err = p.CPUPercent(); err != nil {
		return st, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return st, err
	}
	st.RSSBytes = mem.RSS
	if n, err := p.NumThreads(); err == nil {
		st.Threads = n
	}
	return st, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	feeds := s.hub.Stats()
	status := "ok"
	for _, f := range feeds {
		if f.Health != capture.Healthy {
			status = "degraded"
			break
		}
	}

	body := gin.H{
		"status":  status,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"clients": s.ClientCount(),
		"feeds":   feeds,
	}
	if ps, err := processStats(); err != nil {
		s.log.Debug("process stats unavailable", zap.Error(err))
	} else {
		body["process"] = ps
	}
	c.JSON(http.StatusOK, body)
}
