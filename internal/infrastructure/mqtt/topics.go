package mqtt

import "fmt"

// Topic prefixes for the engine's MQTT namespace.
//
// Tick topics use the flat scheme: qode/ticks/{symbol}
// so downstream consumers can subscribe per symbol or with wildcards.
const (
	// TopicPrefix is the base for all engine topics.
	TopicPrefix = "qode"

	// TopicPrefixTicks is the base for live tick topics.
	TopicPrefixTicks = "qode/ticks"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "qode/system"

	// TopicPrefixJobs is the base for scheduled job event topics.
	TopicPrefixJobs = "qode/jobs"
)

// Topics provides builders for engine MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	tickTopic := topics.Tick("NSE_Index_NIFTY")
//	// Returns: "qode/ticks/NSE_Index_NIFTY"
type Topics struct{}

// Tick returns the topic for live tick updates of a symbol.
//
// Example: qode/ticks/NSE_Index_NIFTY
func (Topics) Tick(symbol string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixTicks, symbol)
}

// AllTicks returns a pattern matching every tick topic.
//
// Pattern: qode/ticks/+
func (Topics) AllTicks() string {
	return fmt.Sprintf("%s/+", TopicPrefixTicks)
}

// SystemStatus returns the engine status topic.
//
// Example: qode/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// FeedStatus returns the live feed status topic.
//
// Example: qode/system/feed
func (Topics) FeedStatus() string {
	return fmt.Sprintf("%s/feed", TopicPrefixSystem)
}

// JobCompleted returns the topic for completed job run events.
//
// Example: qode/jobs/master_rebuild/completed
func (Topics) JobCompleted(jobName string) string {
	return fmt.Sprintf("%s/%s/completed", TopicPrefixJobs, jobName)
}

// JobFailed returns the topic for failed job run events.
//
// Example: qode/jobs/daily_ingest/failed
func (Topics) JobFailed(jobName string) string {
	return fmt.Sprintf("%s/%s/failed", TopicPrefixJobs, jobName)
}

// AllJobEvents returns a pattern matching all job event topics.
//
// Pattern: qode/jobs/+/+
func (Topics) AllJobEvents() string {
	return fmt.Sprintf("%s/+/+", TopicPrefixJobs)
}

// AllTopics returns a pattern matching every engine topic.
// Use with caution, this receives ALL traffic.
//
// Pattern: qode/#
func (Topics) AllTopics() string {
	return "qode/#"
}
