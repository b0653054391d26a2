package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"NetSankey/internal/model"
	"NetSankey/internal/probe"
	"NetSankey/internal/probe/persistent"
	"NetSankey/internal/query"
	"NetSankey/internal/snapshot"
	"NetSankey/internal/store/memory"
	"NetSankey/pkg/pcap"

	log "github.com/sirupsen/logrus"
)

func main() {
	outDir := flag.String("o", "snapshots", "Directory the graph snapshots are written to.")
	servers := flag.String("servers", "", "Comma separated server addresses used to tag nodes.")
	focus := flag.String("focus", "", "Only keep traffic to or from this address.")
	detail := flag.String("detail", "protocol", "Link detail: protocol or ports.")
	flag.Parse()

	// 1. Get pcap file path from command-line arguments
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./cmd/pcap-analyzer [-o dir] [-servers a,b] <path_to_pcap_file>")
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	d, err := model.ParseDetail(*detail)
	if err != nil {
		log.Fatal(err)
	}
	var serverList []string
	for _, s := range strings.Split(*servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			serverList = append(serverList, s)
		}
	}

	// 2. Replay the file into an in-memory store
	pcapReader, err := pcap.NewReader(pcapFilePath)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer pcapReader.Close()
	log.Infof("Reading packets from '%s'...", pcapFilePath)

	st := memory.New()
	worker := persistent.NewWorker(st, persistent.Options{QueueSize: 1 << 16, BatchSize: 1000}, nil)
	capture := probe.NewCapture(probe.BlockingSink(context.Background(), worker), nil, nil)
	if err := capture.Run(context.Background(), pcapReader.Packets()); err != nil {
		log.Fatalf("Failed to read packets: %v", err)
	}
	worker.Stop()
	log.Infof("Finished reading %d IP packets.", st.Len())

	// 3. Render every graph mode
	q := query.NewQuerier(st, 0, nil)
	name := strings.TrimSuffix(filepath.Base(pcapFilePath), filepath.Ext(pcapFilePath))
	writer := snapshot.NewWriter()
	ctx := context.Background()

	for _, mode := range []model.Mode{model.ModeMerged, model.ModePerProtocol, model.ModeLayered} {
		ov, err := q.Overview(ctx, query.TrafficRequest{Servers: serverList, Focus: *focus, Mode: mode, Detail: d})
		if err != nil {
			log.Fatalf("Failed to build %s graph: %v", mode, err)
		}
		dir, err := writer.WriteNow(snapshot.Snapshot{
			Name:  name + "_" + string(mode),
			Mode:  mode,
			Hosts: ov.Hosts,
			Graph: ov.Graph,
		}, *outDir)
		if err != nil {
			log.Fatalf("Failed to write snapshot: %v", err)
		}
		log.Infof("Wrote %s graph (%d nodes, %d links) to %s", mode, len(ov.Graph.Nodes), len(ov.Graph.Links), dir)
	}
}
