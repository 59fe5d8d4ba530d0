// Command redstone-cli decodes and aggregates a single RedStone payload
// from the command line, either from a file or from the calldata of an
// on-chain transaction.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/powerloom/redstone-processor/config"
	"github.com/powerloom/redstone-processor/pkgs/consensus"
	"github.com/powerloom/redstone-processor/pkgs/identity"
	"github.com/powerloom/redstone-processor/pkgs/processor"
	"github.com/powerloom/redstone-processor/pkgs/protocol"
)

var (
	flagPayloadFile      string
	flagTxHash           string
	flagRPCURL           string
	flagConfigFile       string
	flagBlockTimestampMs uint64
	flagFeeds            []string
)

var rootCmd = &cobra.Command{
	Use:   "redstone-cli",
	Short: "Decode, validate, and aggregate RedStone oracle payloads",
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process a single payload and print aggregated feed values",
	RunE:  runProcess,
}

func init() {
	processCmd.Flags().StringVar(&flagPayloadFile, "payload-file", "", "path to a file containing the raw payload bytes")
	processCmd.Flags().StringVar(&flagTxHash, "tx-hash", "", "transaction hash to fetch the payload's calldata from")
	processCmd.Flags().StringVar(&flagRPCURL, "rpc-url", "", "Ethereum JSON-RPC endpoint, required with --tx-hash")
	processCmd.Flags().Uint64Var(&flagBlockTimestampMs, "block-timestamp-ms", 0, "block timestamp (ms since epoch) the freshness window is measured against")
	processCmd.Flags().StringVar(&flagConfigFile, "config-file", "", "YAML/JSON/TOML file overlaying trust configuration onto env vars")
	processCmd.Flags().StringArrayVar(&flagFeeds, "feed", nil, "hex-encoded feed id to request a value for (repeatable)")
	processCmd.MarkFlagsOneRequired("payload-file", "tx-hash")
	processCmd.MarkFlagsMutuallyExclusive("payload-file", "tx-hash")
	processCmd.MarkFlagRequired("feed")

	rootCmd.AddCommand(processCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runProcess(cmd *cobra.Command, args []string) error {
	if err := config.LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if flagConfigFile != "" {
		if err := config.LoadConfigFile(flagConfigFile); err != nil {
			return err
		}
	}
	cfg := config.SettingsObj

	if flagBlockTimestampMs == 0 {
		return fmt.Errorf("--block-timestamp-ms is required")
	}

	feeds := make([]protocol.FeedID, len(flagFeeds))
	for i, feedHex := range flagFeeds {
		feed, err := protocol.FeedIDFromHex(feedHex)
		if err != nil {
			return err
		}
		feeds[i] = feed
	}

	payload, err := loadPayload(cmd.Context())
	if err != nil {
		return err
	}

	recoverer := identity.DefaultCachingRecoverer(cfg.RecoveryCacheSize)
	trust := identity.NewTrustSet(identity.Config{
		TrustedSigners: cfg.TrustedAddresses(),
		PerFeedSigners: cfg.PerFeedAddresses(),
	})
	proc := processor.New(recoverer, nil, nil)

	consCfg := consensusConfig(cfg)
	consCfg.Feeds = feeds

	result, err := proc.Process(processor.Config{
		Trust:            trust,
		BlockTimestampMs: flagBlockTimestampMs,
		Consensus:        consCfg,
	}, payload)
	if err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}

	for _, feed := range result.Feeds {
		if value := result.Values[feed]; value != nil {
			fmt.Printf("%s\t%s\n", feed.Hex(), value.String())
		}
	}
	fmt.Printf("min_timestamp_ms\t%d\n", result.MinTimestamp)
	if len(result.Metadata) > 0 {
		log.WithField("metadata_hex", hex.EncodeToString(result.Metadata)).Debug("payload metadata")
	}
	return nil
}

func loadPayload(ctx context.Context) ([]byte, error) {
	if flagPayloadFile != "" {
		data, err := os.ReadFile(flagPayloadFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		return data, nil
	}

	if flagRPCURL == "" {
		return nil, fmt.Errorf("--rpc-url is required with --tx-hash")
	}
	source, err := protocol.NewChainSource(ctx, flagRPCURL)
	if err != nil {
		return nil, err
	}
	defer source.Close()
	return source.FetchCalldata(ctx, flagTxHash)
}

func consensusConfig(cfg *config.Settings) consensus.Config {
	return consensus.Config{
		MaxTimestampDelayMs: cfg.MaxTimestampDelayMs,
		MaxTimestampAheadMs: cfg.MaxTimestampAheadMs,
		MinSignersPerFeed:   cfg.MinSignersPerFeed,
	}
}
