package ports

import "time"

// FanoutPolicy bounds the broadcaster mailbox and the per-viewer outboxes.
type FanoutPolicy struct {
	MaxQueueLen      int           `yaml:"max_queue_len"`
	MaxBatchSize     int           `yaml:"max_batch_size"`
	IdleSleep        time.Duration `yaml:"idle_sleep"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	MaxSubscribers   int           `yaml:"max_subscribers"` // 0 = unlimited
	WriteTimeout     time.Duration `yaml:"write_timeout"`

	OnQueueFull string `yaml:"on_queue_full"` // "block", "drop"
}
