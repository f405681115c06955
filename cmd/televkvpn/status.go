package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/didierodjou/televkvpn/internal/config"
	"github.com/didierodjou/televkvpn/internal/statsink"
)

var statusInterestingMetrics = []string{
	"televkvpn_packets_sent_total",
	"televkvpn_packets_received_total",
	"televkvpn_batches_uploaded_total",
	"televkvpn_batches_dropped_total",
	"televkvpn_traffic_started",
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report this endpoint's configured location and current traffic counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		fmt.Printf("Location: %s\n", cfg.LocationLabel)
		fmt.Printf("Transport: %s\n", cfg.TransportType)

		if cfg.Metrics.Enabled {
			if err := printLiveMetrics(cfg.Metrics.Listen); err != nil {
				fmt.Printf("(could not reach running daemon's metrics endpoint: %v)\n", err)
			}
		} else {
			fmt.Println("(metrics.enabled is false; start the daemon with metrics enabled to see live counters)")
		}

		if cfg.Postgres.Host != "" {
			printRecentHistory(cfg)
		}

		return nil
	},
}

func printLiveMetrics(listen string) error {
	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", listen))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	wanted := make(map[string]bool, len(statusInterestingMetrics))
	for _, m := range statusInterestingMetrics {
		wanted[m] = true
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		name := strings.SplitN(line, " ", 2)[0]
		if wanted[name] {
			fmt.Println(line)
		}
	}
	return scanner.Err()
}

func printRecentHistory(cfg *config.Config) {
	sink, err := statsink.New(cfg.Postgres)
	if err != nil {
		fmt.Printf("(could not open stats history: %v)\n", err)
		return
	}
	defer sink.Stop()

	snaps, err := sink.RecentSnapshots(context.Background(), 5)
	if err != nil {
		fmt.Printf("(could not read stats history: %v)\n", err)
		return
	}

	fmt.Println("Recent snapshots:")
	for _, s := range snaps {
		fmt.Printf("  %s  sent=%d recv=%d dropped=%d\n",
			s.RecordedAt.Format("2006-01-02 15:04:05"), s.PacketsSent, s.PacketsReceived, s.BatchesDropped)
	}
}
