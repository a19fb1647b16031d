package model

import "time"

// ClickEvent is emitted once per successful redirect and carried by the
// queue until the consumer applies it. It has no identity of its own; the
// transport assigns delivery ids.
type ClickEvent struct {
	ShortCode  string    `json:"short_code"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	ClickStreamName     = "CLICKS"
	ClickStreamSubject  = "clicks.events"
	ClickConsumerName   = "click-accounting"
	ClickStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
