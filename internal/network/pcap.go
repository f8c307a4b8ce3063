//go:build pcap
// +build pcap

package network

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/laptime.report/internal/monitoring"
)

// PCAPAvailable reports whether the binary was built with libpcap support.
const PCAPAvailable = true

// ReadPCAPFile replays telemetry datagrams captured with tcpdump/Wireshark.
// Only UDP payloads to udpPort are delivered to handler. With a
// SpeedMultiplier above zero the original inter-packet timing is reproduced
// (scaled); otherwise the file is read as fast as possible.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, handler FrameHandler, stats PacketStatsInterface, config PCAPReplayConfig) error {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	monitoring.Logf("PCAP BPF filter set: %s (speed: %.1fx)", filterStr, config.SpeedMultiplier)

	if stats == nil {
		stats = &noopStats{}
	}

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	startTime := time.Now()
	var lastPacketTime time.Time

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("PCAP reader stopping due to context cancellation (processed %d packets)", packetCount)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				monitoring.Logf("PCAP file reading complete: %d packets processed in %v", packetCount, time.Since(startTime))
				return nil
			}
			packetCount++

			if config.SpeedMultiplier > 0 {
				captureTime := packet.Metadata().Timestamp
				if !lastPacketTime.IsZero() {
					delay := time.Duration(float64(captureTime.Sub(lastPacketTime)) / config.SpeedMultiplier)
					if delay > 0 {
						select {
						case <-ctx.Done():
							return ctx.Err()
						case <-time.After(delay):
						}
					}
				}
				lastPacketTime = captureTime
			}

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}

			stats.AddPacket(len(udp.Payload))
			if config.Forwarder != nil {
				config.Forwarder.ForwardAsync(udp.Payload)
			}
			if handler != nil {
				if err := handler.HandleFrame(udp.Payload); err != nil {
					monitoring.Logf("Error handling PCAP packet %d: %v", packetCount, err)
				}
			}

			if packetCount%10000 == 0 {
				elapsed := time.Since(startTime)
				monitoring.Logf("PCAP progress: %d packets processed in %v (%.0f pkt/s)",
					packetCount, elapsed, float64(packetCount)/elapsed.Seconds())
			}
		}
	}
}
