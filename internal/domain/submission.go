package domain

import "time"

// Submission is a raw ingestion request as it arrived from a transport
// (HTTP body or MQTT payload), before the device key is checked.
type Submission struct {
	DeviceKey  string
	Body       []byte
	ReceivedAt time.Time
	Transport  string
}
