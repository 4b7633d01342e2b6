package broadcast

import (
	"testing"
	"time"
)

func TestPlanForTiers(t *testing.T) {
	cases := []struct {
		total     int
		wantSize  int
		wantPause time.Duration
	}{
		{total: 1, wantSize: 25, wantPause: 3 * time.Second},
		{total: 999, wantSize: 25, wantPause: 3 * time.Second},
		{total: 1000, wantSize: 50, wantPause: 5 * time.Second},
		{total: 4999, wantSize: 50, wantPause: 5 * time.Second},
		{total: 5000, wantSize: 100, wantPause: 10 * time.Second},
		{total: 50000, wantSize: 100, wantPause: 10 * time.Second},
	}
	for _, tc := range cases {
		plan := PlanFor(tc.total)
		if plan.BatchSize != tc.wantSize || plan.BatchPause != tc.wantPause {
			t.Errorf("PlanFor(%d) = {%d, %v}, want {%d, %v}",
				tc.total, plan.BatchSize, plan.BatchPause, tc.wantSize, tc.wantPause)
		}
	}
}

func TestWidenedDelaySpreadsWaitAcrossBatch(t *testing.T) {
	// 5s over a batch of 25 plus the margin is 300ms, narrower than the
	// current 400ms, so the delay must not shrink.
	if got := WidenedDelay(400*time.Millisecond, 5*time.Second, 25); got != 400*time.Millisecond {
		t.Errorf("WidenedDelay narrowed the delay: got %v", got)
	}

	got := WidenedDelay(400*time.Millisecond, 30*time.Second, 25)
	want := 30*time.Second/25 + 100*time.Millisecond
	if got != want {
		t.Errorf("WidenedDelay = %v, want %v", got, want)
	}
}

func TestWidenedDelayKeepsCurrentWhenWider(t *testing.T) {
	current := 2 * time.Second
	if got := WidenedDelay(current, time.Second, 50); got != current {
		t.Errorf("WidenedDelay = %v, want unchanged %v", got, current)
	}
}
