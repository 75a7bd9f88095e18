package monitor

import "reachloop/models"

// Benchmark holds the expected engagement rates for a channel, in
// percent. The table is a static comparison baseline, never a pass/fail
// threshold on its own.
type Benchmark struct {
	OpenRate   float64
	ClickRate  float64
	ReplyRate  float64
	BounceRate float64
}

var channelBenchmarks = map[models.Channel]Benchmark{
	models.ChannelEmail:              {OpenRate: 25, ClickRate: 3, ReplyRate: 2, BounceRate: 2},
	models.ChannelLinkedInConnection: {OpenRate: 60, ClickRate: 0, ReplyRate: 25, BounceRate: 1},
	models.ChannelLinkedInMessage:    {OpenRate: 55, ClickRate: 3, ReplyRate: 15, BounceRate: 1},
	models.ChannelSMS:                {OpenRate: 90, ClickRate: 8, ReplyRate: 10, BounceRate: 2},
	models.ChannelPhone:              {OpenRate: 0, ClickRate: 0, ReplyRate: 12, BounceRate: 0},
	models.ChannelVoicemail:          {OpenRate: 0, ClickRate: 0, ReplyRate: 5, BounceRate: 0},
}

// BenchmarkFor returns the benchmark for a channel, falling back to a
// generic baseline for channels missing from the table.
func BenchmarkFor(channel models.Channel) Benchmark {
	if b, ok := channelBenchmarks[channel]; ok {
		return b
	}
	return Benchmark{OpenRate: 20, ClickRate: 2, ReplyRate: 2, BounceRate: 2}
}
