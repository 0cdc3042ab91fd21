package monitoreo

import (
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/app/fanout"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

// Sample is one sensor reading; optional fields are nil when absent.
type Sample = domain.Sample

// StoredSample is a Sample with the id the store assigned to it.
type StoredSample = domain.StoredSample

// Submission is a raw device message as delivered by a Collector.
type Submission = domain.Submission

// Collector feeds device submissions from a non-HTTP transport (MQTT, serial
// bridges, simulators) through the same ingestion path as POST requests.
type Collector = ports.Collector

// SampleStore persists samples and answers time-ordered queries.
type SampleStore = ports.SampleStore

// AccountStore persists user accounts for session login.
type AccountStore = ports.AccountStore

// Conn is a live push-channel viewer.
type Conn = ports.Conn

type Subscription = fanout.Subscription

type Observability = ports.Observability

type Field = ports.Field

type Clock = ports.Clock

// Account is a registered user.
type Account = domain.Account
