package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"NetSankey/internal/config"
	"NetSankey/internal/logging"
	"NetSankey/internal/metrics"
	"NetSankey/internal/model"
	"NetSankey/internal/probe"
	"NetSankey/internal/probe/persistent"
	"NetSankey/internal/store"
	_ "NetSankey/internal/store/badger"
	_ "NetSankey/internal/store/clickhouse"
	pcapfile "NetSankey/pkg/pcap"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

func main() {
	// --- Command-Line Flag Parsing ---
	mode := flag.String("mode", "pub", "Operating mode: 'pub' to capture and publish to NATS, 'direct' to capture into the store, 'sub' to subscribe and print.")
	iface := flag.String("iface", "", "Interface to capture packets from. Overrides probe.interface and CAPTURE_INTERFACE.")
	pcapPath := flag.String("pcap", "", "Replay a pcap file instead of capturing live.")
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logging.Setup(cfg.Log); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	if *iface != "" {
		cfg.Probe.Interface = *iface
	}

	// --- Mode Dispatch ---
	switch *mode {
	case "pub":
		pub, err := probe.NewPublisher(cfg.Probe)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer pub.Close()
		runProbe(cfg, pub, *pcapPath)
	case "direct":
		st, err := store.Open(cfg.Store)
		if err != nil {
			log.Fatalf("Failed to open store: %v", err)
		}
		defer st.Close()
		runProbe(cfg, st, *pcapPath)
	case "sub":
		runSubscriber(cfg)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// runProbe captures packets, live or from a file, and writes the resulting
// records through a persistent worker.
func runProbe(cfg *config.Config, writer model.RecordWriter, pcapPath string) {
	m := metrics.New(prometheus.DefaultRegisterer)
	worker := persistent.NewWorker(writer, persistent.OptionsFrom(cfg.Ingest), m)
	defer worker.Stop()

	var (
		packets  chan gopacket.Packet
		linkType layers.LinkType
	)
	if pcapPath != "" {
		reader, err := pcapfile.NewReader(pcapPath)
		if err != nil {
			log.Fatalf("Error opening pcap file %s: %v", pcapPath, err)
		}
		defer reader.Close()
		log.Infof("Replaying packets from %s", pcapPath)
		packets = reader.Packets()
		linkType = reader.LinkType()
	} else {
		handle := openLive(cfg.Probe)
		defer handle.Close()
		packets = gopacket.NewPacketSource(handle, handle.LinkType()).Packets()
		linkType = handle.LinkType()
	}

	var journal *persistent.Journal
	if cfg.Probe.JournalPath != "" {
		j, err := persistent.NewJournal(cfg.Probe.JournalPath, uint32(cfg.Probe.SnapshotLen), linkType)
		if err != nil {
			log.Fatalf("Failed to open journal: %v", err)
		}
		defer j.Close()
		journal = j
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink probe.Sink = worker
	if pcapPath != "" {
		sink = probe.BlockingSink(ctx, worker)
	}
	capture := probe.NewCapture(sink, journal, m)
	if err := capture.Run(ctx, packets); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("Capture stopped")
	}
	log.Infof("Shutting down after %d packets, flushing queued records...", capture.Captured())
}

func openLive(cfg config.ProbeConfig) *pcap.Handle {
	if cfg.Interface == "" {
		name, err := probe.DefaultInterface()
		if err != nil {
			log.Fatalf("%v: set -iface, probe.interface or CAPTURE_INTERFACE", err)
		}
		log.Infof("No interface configured, using %s", name)
		cfg.Interface = name
	}
	log.Infof("Starting capture on interface: %s", cfg.Interface)

	handle, err := pcap.OpenLive(cfg.Interface, cfg.SnapshotLen, cfg.Promiscuous, pcap.BlockForever)
	if err != nil {
		log.Fatalf("Error opening device %s: %v (capturing usually needs root)", cfg.Interface, err)
	}
	if cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(cfg.BPFFilter); err != nil {
			log.Fatalf("Invalid BPF filter %q: %v", cfg.BPFFilter, err)
		}
	}
	return handle
}

// runSubscriber prints every record published on the probe subject.
func runSubscriber(cfg *config.Config) {
	log.Info("Starting ns-probe in SUBSCRIBER mode...")

	sub, err := probe.NewSubscriber(cfg.Probe)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	handler := func(rec model.FlowRecord) {
		log.Infof("Received record: %+v", rec)
	}
	if err := sub.Start(handler); err != nil {
		log.Fatalf("Subscriber failed to start: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutdown signal received, cleaning up...")
}
