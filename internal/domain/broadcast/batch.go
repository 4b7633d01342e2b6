// internal/domain/broadcast/batch.go
package broadcast

import "time"

// BatchPlan holds the pacing parameters for one broadcast run: recipients
// are sent in groups of BatchSize separated by BatchPause.
type BatchPlan struct {
	BatchSize  int
	BatchPause time.Duration
}

// BaseMessageDelay is the default pause between consecutive sends. Chosen
// so throughput stays well under Telegram's 30 messages/second ceiling.
const BaseMessageDelay = 400 * time.Millisecond

// PlanFor selects batch parameters from the total recipient count. Larger
// audiences use bigger batches and longer pauses to amortize the overhead
// while keeping the absolute per-second rate within the platform limit.
func PlanFor(total int) BatchPlan {
	switch {
	case total >= 5000:
		return BatchPlan{BatchSize: 100, BatchPause: 10 * time.Second}
	case total >= 1000:
		return BatchPlan{BatchSize: 50, BatchPause: 5 * time.Second}
	default:
		return BatchPlan{BatchSize: 25, BatchPause: 3 * time.Second}
	}
}

// WidenedDelay computes the new per-message delay floor after the platform
// signaled a rate limit with the given mandated wait: the signaled wait is
// spread across a batch, plus a fixed safety margin. The current delay is
// kept if it is already wider.
func WidenedDelay(current, signaledWait time.Duration, batchSize int) time.Duration {
	if batchSize <= 0 {
		batchSize = 1
	}
	widened := signaledWait/time.Duration(batchSize) + 100*time.Millisecond
	if widened > current {
		return widened
	}
	return current
}
