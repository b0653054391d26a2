package persistent

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"
)

// Journal writes a pcap copy of captured frames.
type Journal struct {
	mu     sync.Mutex
	file   *os.File
	writer *pcapgo.Writer
}

// NewJournal creates the pcap file at path and writes its header.
func NewJournal(path string, snaplen uint32, linkType layers.LinkType) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal file: %w", err)
	}

	writer := pcapgo.NewWriter(file)
	if err := writer.WriteFileHeader(snaplen, linkType); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write pcap file header: %w", err)
	}
	log.Infof("Journaling captured frames to %s", path)
	return &Journal{file: file, writer: writer}, nil
}

// Write appends one frame.
func (j *Journal) Write(packet gopacket.Packet) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	ci := packet.Metadata().CaptureInfo
	ci.CaptureLength = len(packet.Data())
	if ci.Length < ci.CaptureLength {
		ci.Length = ci.CaptureLength
	}
	return j.writer.WritePacket(ci, packet.Data())
}

// Close closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
