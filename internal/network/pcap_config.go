package network

// PCAPReplayConfig configures PCAP replay.
type PCAPReplayConfig struct {
	// SpeedMultiplier paces replay against capture timestamps (1.0 = real
	// time, 2.0 = double speed). Zero or less reads as fast as possible.
	SpeedMultiplier float64

	// Forwarder relays each replayed datagram (optional).
	Forwarder *PacketForwarder
}
