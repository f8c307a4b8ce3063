//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"fmt"
)

// PCAPAvailable reports whether the binary was built with libpcap support.
const PCAPAvailable = false

// ReadPCAPFile is a stub implementation when PCAP support is disabled.
// Build with -tags=pcap to enable PCAP file reading.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, handler FrameHandler, stats PacketStatsInterface, config PCAPReplayConfig) error {
	return fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP file reading")
}
