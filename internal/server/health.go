package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleHealth reports process liveness plus host CPU/RAM utilisation,
// grounded on the teacher's own health endpoint
// (internal/server/system_handlers.go's getSystemStats).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := s.getSystemStats()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"mode":         s.core.Router.Mode(),
		"active_models": len(s.core.Registry.ListActive()),
		"cpu_percent":  cpuPct,
		"mem_percent":  memPct,
	})
}

func (s *Server) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read cpu percentage")
		cpuPercent = []float64{0}
	}
	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read memory statistics")
		return 0, 0
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
