package api

// LinkProperties shape the egress of a client uplink.
type LinkProperties struct {
	Latency uint32  `yaml:"latency"` // in ms
	Loss    float32 `yaml:"loss"`    // in percentage
	Rate    uint64  `yaml:"rate"`    // in mbps
}

func (p LinkProperties) IsZero() bool {
	return p.Latency == 0 && p.Loss == 0 && p.Rate == 0
}
