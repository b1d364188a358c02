package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/use-agent/mediatap/models"
	"github.com/use-agent/mediatap/store"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// memDegraded is the host memory usage above which the service reports
// itself degraded; new browser tabs are likely to fail past it.
const memDegraded = 90.0

// Health returns a handler for GET /api/v1/health.
//
// Reports pool utilisation and host memory, and degrades status when > 80%
// of pages are active or host memory is nearly exhausted. stats may be nil
// when no browser is running.
func Health(stats func() models.PoolStats, st store.Store, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var pool models.PoolStats
		if stats != nil {
			pool = stats()
		}

		var host models.HostStats
		if vm, err := mem.VirtualMemory(); err == nil {
			host.MemUsedPercent = vm.UsedPercent
			host.MemAvailableMB = vm.Available >> 20
		}

		status := "healthy"
		if pool.MaxPages > 0 && pool.ActivePages > int(float64(pool.MaxPages)*0.8) {
			status = "degraded"
		}
		if host.MemUsedPercent > memDegraded {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			Captured:  st.Count(),
			PoolStats: pool,
			Host:      host,
			Version:   Version,
		})
	}
}
