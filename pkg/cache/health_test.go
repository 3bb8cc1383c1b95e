package cache

import (
	"testing"
)

func TestEvaluateHealth(t *testing.T) {
	tests := []struct {
		name        string
		stats       Stats
		wantStatus  HealthStatus
		wantReasons int
	}{
		{
			name:       "idle cache is healthy",
			stats:      Stats{},
			wantStatus: HealthHealthy,
		},
		{
			name:        "memory warning",
			stats:       Stats{MemoryUsagePercent: 80},
			wantStatus:  HealthWarning,
			wantReasons: 1,
		},
		{
			name:        "memory critical",
			stats:       Stats{MemoryUsagePercent: 95},
			wantStatus:  HealthCritical,
			wantReasons: 1,
		},
		{
			name:        "low hit rate warning",
			stats:       Stats{Hits: 30, Misses: 70, HitRate: 0.3},
			wantStatus:  HealthWarning,
			wantReasons: 1,
		},
		{
			name:        "very low hit rate critical",
			stats:       Stats{Hits: 10, Misses: 190, HitRate: 0.05},
			wantStatus:  HealthCritical,
			wantReasons: 1,
		},
		{
			name:       "hit rate ignored for cold cache",
			stats:      Stats{Hits: 0, Misses: 50, HitRate: 0},
			wantStatus: HealthHealthy,
		},
		{
			name:        "critical wins over warning",
			stats:       Stats{MemoryUsagePercent: 80, Hits: 10, Misses: 190, HitRate: 0.05},
			wantStatus:  HealthCritical,
			wantReasons: 2,
		},
		{
			name:       "good hit rate",
			stats:      Stats{Hits: 900, Misses: 100, HitRate: 0.9, MemoryUsagePercent: 40},
			wantStatus: HealthHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := evaluateHealth(tt.stats)
			if r.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v (reasons %v)", r.Status, tt.wantStatus, r.Reasons)
			}
			if len(r.Reasons) != tt.wantReasons {
				t.Errorf("Reasons = %v, want %d entries", r.Reasons, tt.wantReasons)
			}
			if r.IsHealthy() != (tt.wantStatus == HealthHealthy) {
				t.Errorf("IsHealthy() = %v", r.IsHealthy())
			}
		})
	}
}

func TestCache_Health(t *testing.T) {
	c, _ := newTestCache(t, func(cfg *Config) {
		cfg.MaxMemory = 1000
		cfg.TieredCaching = false
	})

	if r := c.Health(); !r.IsHealthy() {
		t.Errorf("empty cache Health() = %v, want healthy", r.Status)
	}

	_ = c.Set("k", make([]byte, 950), SetOptions{})

	r := c.Health()
	if r.Status != HealthCritical {
		t.Errorf("Health() at 95%% = %v, want critical", r.Status)
	}
	if r.Keys != 1 || r.TotalBytes != 950 || r.MaxMemory != 1000 {
		t.Errorf("Health() keys/bytes/max = %d/%d/%d, want 1/950/1000", r.Keys, r.TotalBytes, r.MaxMemory)
	}
}
