package scheduler

import (
	"context"
	"io"
	"log"
	"testing"
	"time"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestGetInitialDelay(t *testing.T) {
	s := NewHomeScheduler(DefaultConfig(), testLogger())

	tests := []struct {
		name     string
		now      time.Time
		interval time.Duration
		want     time.Duration
	}{
		{
			name:     "on the boundary",
			now:      time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
			interval: 15 * time.Minute,
			want:     0,
		},
		{
			name:     "mid slot",
			now:      time.Date(2026, 3, 10, 14, 7, 0, 0, time.UTC),
			interval: 15 * time.Minute,
			want:     8 * time.Minute,
		},
		{
			name:     "just before boundary",
			now:      time.Date(2026, 3, 10, 14, 44, 30, 0, time.UTC),
			interval: 15 * time.Minute,
			want:     30 * time.Second,
		},
		{
			name:     "hourly interval",
			now:      time.Date(2026, 3, 10, 14, 20, 0, 0, time.UTC),
			interval: time.Hour,
			want:     40 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.getInitialDelay(tt.now, tt.interval); got != tt.want {
				t.Errorf("getInitialDelay(%v, %v) = %v, want %v", tt.now, tt.interval, got, tt.want)
			}
		})
	}
}

func TestLearningInitialDelay(t *testing.T) {
	loc, _ := time.LoadLocation("Europe/Stockholm")

	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Duration
	}{
		{
			name: "later today",
			now:  time.Date(2026, 3, 10, 1, 0, 0, 0, loc),
			hour: 3,
			want: 2 * time.Hour,
		},
		{
			name: "already passed, tomorrow",
			now:  time.Date(2026, 3, 10, 4, 0, 0, 0, loc),
			hour: 3,
			want: 23 * time.Hour,
		},
		{
			name: "exactly at the hour rolls to tomorrow",
			now:  time.Date(2026, 3, 10, 3, 0, 0, 0, loc),
			hour: 3,
			want: 24 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := learningInitialDelay(tt.now, tt.hour); got != tt.want {
				t.Errorf("learningInitialDelay(%v, %d) = %v, want %v", tt.now, tt.hour, got, tt.want)
			}
		})
	}
}

func TestWeatherCacheExpiry(t *testing.T) {
	cache := weatherCache{maxAge: time.Hour}

	if cache.Get() != nil {
		t.Error("empty cache should return nil")
	}

	forecast := makeForecast()
	cache.Set(forecast)
	if cache.Get() != forecast {
		t.Error("fresh cache should return the stored forecast")
	}

	cache.fetchedAt = time.Now().Add(-2 * time.Hour)
	if cache.Get() != nil {
		t.Error("stale cache should return nil")
	}
}

func TestBuildPlanRequestWithoutPrices(t *testing.T) {
	s := NewHomeScheduler(DefaultConfig(), testLogger())

	_, err := s.buildPlanRequest(context.Background(), time.Now())
	if err == nil {
		t.Error("expected error without a price document")
	}
}

func TestSchedulerStatusReflectsState(t *testing.T) {
	s := NewHomeScheduler(DefaultConfig(), testLogger())

	status := s.GetStatus()
	if status.IsRunning {
		t.Error("new scheduler should not be running")
	}
	if status.HasPriceData {
		t.Error("new scheduler should have no price data")
	}
	if status.PlanSlots != 0 {
		t.Errorf("plan slots = %d, want 0", status.PlanSlots)
	}
}

func TestCurrentScheduleNilWithoutPlan(t *testing.T) {
	s := NewHomeScheduler(DefaultConfig(), testLogger())
	if slots := s.currentSchedule(); slots != nil {
		t.Errorf("expected nil schedule, got %d slots", len(slots))
	}
}
