package cache

import (
	"fmt"
	"reflect"
	"testing"
	"time"
)

func TestTierManager_Place(t *testing.T) {
	tm := &tierManager{enabled: true, hotBudget: 1000, largeValue: 200}

	tests := []struct {
		name     string
		priority Priority
		size     int64
		hotBytes int64
		want     Tier
	}{
		{"small value with room", PriorityNormal, 100, 0, TierHot},
		{"large value goes cold", PriorityNormal, 201, 0, TierCold},
		{"hot tier full", PriorityNormal, 100, 1000, TierCold},
		{"high priority large value", PriorityHigh, 5000, 0, TierHot},
		{"high priority with full hot tier", PriorityHigh, 100, 1000, TierHot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tm.place(tt.priority, tt.size, tt.hotBytes); got != tt.want {
				t.Errorf("place() = %v, want %v", got, tt.want)
			}
		})
	}

	disabled := &tierManager{enabled: false, hotBudget: 10, largeValue: 1}
	if got := disabled.place(PriorityNormal, 1<<20, 1<<20); got != TierHot {
		t.Errorf("place() with tiering disabled = %v, want hot", got)
	}
}

func TestTierManager_ShouldPromote(t *testing.T) {
	now := testEpoch
	tm := &tierManager{
		enabled:            true,
		hotBudget:          1000,
		promotionFrequency: 3,
		promotionWindow:    time.Minute,
	}

	tests := []struct {
		name     string
		entry    Entry
		hotBytes int64
		want     bool
	}{
		{
			name:  "frequent recent cold entry",
			entry: Entry{Tier: TierCold, Frequency: 4, SizeBytes: 100, LastAccessedAt: now},
			want:  true,
		},
		{
			name:  "frequency at threshold",
			entry: Entry{Tier: TierCold, Frequency: 3, SizeBytes: 100, LastAccessedAt: now},
			want:  false,
		},
		{
			name:  "already hot",
			entry: Entry{Tier: TierHot, Frequency: 10, SizeBytes: 100, LastAccessedAt: now},
			want:  false,
		},
		{
			name:  "outside window",
			entry: Entry{Tier: TierCold, Frequency: 10, SizeBytes: 100, LastAccessedAt: now.Add(-2 * time.Minute)},
			want:  false,
		},
		{
			name:     "no room in hot tier",
			entry:    Entry{Tier: TierCold, Frequency: 10, SizeBytes: 100, LastAccessedAt: now},
			hotBytes: 950,
			want:     false,
		},
		{
			name:     "fits exactly",
			entry:    Entry{Tier: TierCold, Frequency: 10, SizeBytes: 100, LastAccessedAt: now},
			hotBytes: 900,
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.entry
			if got := tm.shouldPromote(&e, tt.hotBytes, e.LastAccessedAt, now); got != tt.want {
				t.Errorf("shouldPromote() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCache_PromotionAfterRepeatedReads(t *testing.T) {
	c, _ := newTestCache(t, func(cfg *Config) {
		cfg.CompressionThreshold = 64
		cfg.L1CacheSize = 1000
	})
	rec := &recorder{}
	c.Subscribe(rec.observe)

	// 200 bytes > 2*64, so it lands cold.
	_ = c.Set("x", make([]byte, 200), SetOptions{})
	if info, _ := c.Inspect("x"); info.Tier != TierCold {
		t.Fatalf("initial tier = %v, want cold", info.Tier)
	}

	for i := 1; i <= 3; i++ {
		c.Get("x")
		if info, _ := c.Inspect("x"); info.Tier != TierCold {
			t.Fatalf("tier after %d reads = %v, want cold", i, info.Tier)
		}
	}

	c.Get("x")
	info, _ := c.Inspect("x")
	if info.Tier != TierHot {
		t.Errorf("tier after 4 reads = %v, want hot", info.Tier)
	}
	if got := c.Stats().Promotions; got != 1 {
		t.Errorf("Promotions = %d, want 1", got)
	}
	if n := len(rec.byType(EventPromote)); n != 1 {
		t.Errorf("promote events = %d, want 1", n)
	}
	assertAccounting(t, c)
}

func TestCache_PromotionRequiresRecentAccess(t *testing.T) {
	c, clk := newTestCache(t, func(cfg *Config) {
		cfg.CompressionThreshold = 64
		cfg.L1CacheSize = 1000
		cfg.PromotionWindow = time.Minute
	})

	_ = c.Set("x", make([]byte, 200), SetOptions{})

	for i := 1; i <= 5; i++ {
		clk.Advance(10 * time.Minute)
		c.Get("x")
		if info, _ := c.Inspect("x"); info.Tier != TierCold {
			t.Fatalf("tier after %d reads spaced 10m apart = %v, want cold", i, info.Tier)
		}
	}

	// A read inside the window promotes the now frequent entry.
	clk.Advance(30 * time.Second)
	c.Get("x")
	if info, _ := c.Inspect("x"); info.Tier != TierHot {
		t.Errorf("tier after read within window = %v, want hot", info.Tier)
	}
	if got := c.Stats().Promotions; got != 1 {
		t.Errorf("Promotions = %d, want 1", got)
	}
	assertAccounting(t, c)
}

func TestCache_PromotionRespectsHotBudget(t *testing.T) {
	c, _ := newTestCache(t, func(cfg *Config) {
		cfg.CompressionThreshold = 64
		cfg.L1CacheSize = 150
	})

	_ = c.Set("x", make([]byte, 200), SetOptions{})
	for i := 0; i < 10; i++ {
		c.Get("x")
	}

	if info, _ := c.Inspect("x"); info.Tier != TierCold {
		t.Errorf("tier = %v, want cold when entry exceeds hot budget", info.Tier)
	}
	if got := c.Stats().Promotions; got != 0 {
		t.Errorf("Promotions = %d, want 0", got)
	}
}

func TestCache_TieringDisabled(t *testing.T) {
	c, _ := newTestCache(t, func(cfg *Config) {
		cfg.TieredCaching = false
		cfg.CompressionThreshold = 64
	})

	_ = c.Set("big", make([]byte, 5000), SetOptions{})
	for i := 0; i < 10; i++ {
		c.Get("big")
	}

	if info, _ := c.Inspect("big"); info.Tier != TierHot {
		t.Errorf("tier = %v, want hot with tiering disabled", info.Tier)
	}
	if got := c.Stats().Promotions; got != 0 {
		t.Errorf("Promotions = %d, want 0", got)
	}
}

func TestCache_HighPriorityPlacement(t *testing.T) {
	c, _ := newTestCache(t, func(cfg *Config) { cfg.CompressionThreshold = 64 })

	_ = c.Set("big", make([]byte, 5000), SetOptions{Priority: PriorityHigh})
	if info, _ := c.Inspect("big"); info.Tier != TierHot {
		t.Errorf("tier = %v, want hot for high priority", info.Tier)
	}
}

func TestHybridScore(t *testing.T) {
	now := testEpoch

	older := &Entry{LastAccessedAt: now.Add(-10 * time.Second), Frequency: 1}
	newer := &Entry{LastAccessedAt: now.Add(-1 * time.Second), Frequency: 1}
	if hybridScore(older, now) <= hybridScore(newer, now) {
		t.Error("older entry should score higher than newer at equal frequency")
	}

	rare := &Entry{LastAccessedAt: now, Frequency: 1}
	popular := &Entry{LastAccessedAt: now, Frequency: 10}
	if hybridScore(rare, now) <= hybridScore(popular, now) {
		t.Error("rarely used entry should score higher than popular at equal age")
	}

	unread := &Entry{LastAccessedAt: now, Frequency: 0}
	if got, want := hybridScore(unread, now), hybridFrequencyWeight; got != want {
		t.Errorf("hybridScore(freq 0) = %v, want %v", got, want)
	}
}

func TestSelectVictims_Hybrid(t *testing.T) {
	tests := []struct {
		name    string
		entries int
		want    []string
	}{
		{"five entries evicts one", 5, []string{"k0"}},
		{"ten entries evicts two oldest", 10, []string{"k0", "k1"}},
		{"single entry", 1, []string{"k0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, clk := newTestCache(t, func(cfg *Config) {
				cfg.EvictionPolicy = PolicyHybrid
				cfg.EvictionBatchFraction = 0.2
			})
			for i := 0; i < tt.entries; i++ {
				_ = c.Set(fmt.Sprintf("k%d", i), i, SetOptions{})
				clk.Advance(time.Second)
			}

			c.mu.Lock()
			got := c.selectVictims(clk.Now())
			c.mu.Unlock()

			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("selectVictims() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectVictims_HybridTiesAreDeterministic(t *testing.T) {
	c, clk := newTestCache(t, func(cfg *Config) {
		cfg.EvictionPolicy = PolicyHybrid
		cfg.EvictionBatchFraction = 0.2
	})

	// Same access time and frequency: every entry scores the same.
	for _, k := range []string{"j", "c", "h", "a", "e", "i", "b", "g", "d", "f"} {
		_ = c.Set(k, 1, SetOptions{})
	}
	clk.Advance(time.Second)

	want := []string{"a", "b"}
	for i := 0; i < 20; i++ {
		c.mu.Lock()
		got := c.selectVictims(clk.Now())
		c.mu.Unlock()

		if !reflect.DeepEqual(got, want) {
			t.Fatalf("selectVictims() run %d = %v, want %v", i, got, want)
		}
	}
}

func TestSelectVictims_LRU(t *testing.T) {
	c, clk := newTestCache(t, func(cfg *Config) { cfg.EvictionPolicy = PolicyLRU })

	for _, k := range []string{"a", "b", "c"} {
		_ = c.Set(k, 1, SetOptions{})
		clk.Advance(time.Second)
	}
	c.Get("a")

	c.mu.Lock()
	got := c.selectVictims(clk.Now())
	c.mu.Unlock()

	if !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("selectVictims() = %v, want [b]", got)
	}
}

func TestSelectVictims_LFU(t *testing.T) {
	c, clk := newTestCache(t, func(cfg *Config) { cfg.EvictionPolicy = PolicyLFU })

	for _, k := range []string{"a", "b", "c", "d"} {
		_ = c.Set(k, 1, SetOptions{})
		clk.Advance(time.Second)
	}
	for i := 0; i < 3; i++ {
		c.Get("a")
	}
	c.Get("b")

	c.mu.Lock()
	got := c.selectVictims(clk.Now())
	c.mu.Unlock()

	// c and d are both unread; c was touched earlier.
	if !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("selectVictims() = %v, want [c]", got)
	}
}

func TestSelectVictims_Empty(t *testing.T) {
	for _, policy := range []EvictionPolicy{PolicyLRU, PolicyLFU, PolicyHybrid} {
		t.Run(string(policy), func(t *testing.T) {
			c, clk := newTestCache(t, func(cfg *Config) { cfg.EvictionPolicy = policy })

			c.mu.Lock()
			got := c.selectVictims(clk.Now())
			c.mu.Unlock()

			if len(got) != 0 {
				t.Errorf("selectVictims() on empty cache = %v, want none", got)
			}
		})
	}
}
