package region

// Built-in default channel plans, keyed by region identifier, used to seed
// the broadcast-latest channel before the Watcher's first successful
// fetch. These are deliberately minimal — just enough channels and
// datarates to make Active() true and SelectDatarate/MaxConductedPower
// succeed — real values are always refreshed from the config service or a
// validator peer shortly after startup.
var defaultDatarates = []Datarate{
	{SpreadingFactor: 10, Bandwidth: 500000, MaxPayloadSize: 51},
	{SpreadingFactor: 9, Bandwidth: 500000, MaxPayloadSize: 53},
	{SpreadingFactor: 8, Bandwidth: 500000, MaxPayloadSize: 125},
	{SpreadingFactor: 7, Bandwidth: 500000, MaxPayloadSize: 242},
}

// NewDefaultForRegion returns the always-valid default Params for the given
// region identifier (spec §3: "the default instance constructed from the
// configured region is always valid").
func NewDefaultForRegion(regionID string) Params {
	switch regionID {
	case "EU868":
		return NewDefault(regionID, []ChannelParam{
			{ChannelFrequency: 869525000, Bandwidth: 125000, MaxEIRP: 27},
		}, defaultDatarates, 27)
	default: // US915 and anything else fall back to the 8-channel US915 plan
		channels := make([]ChannelParam, 8)
		for i := range channels {
			channels[i] = ChannelParam{
				ChannelFrequency: uint32(902300000 + 200000*i),
				Bandwidth:        125000,
				MaxEIRP:          30,
			}
		}
		return NewDefault(regionID, channels, defaultDatarates, 30)
	}
}
