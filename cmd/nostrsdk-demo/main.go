package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/spf13/cobra"

	nostrsdk "github.com/sandwichfarm/nostr-sdk"
	"github.com/sandwichfarm/nostr-sdk/pkg/config"
	"github.com/sandwichfarm/nostr-sdk/pkg/log"
	"github.com/sandwichfarm/nostr-sdk/pkg/negentropy"
	"github.com/sandwichfarm/nostr-sdk/pkg/relay"
	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
	"github.com/sandwichfarm/nostr-sdk/pkg/stats"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nostrsdk-demo",
	Short: "Exercise the nostr-sdk client against one or more relays",
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a pkg/config YAML document (relay policy, gossip, caching); unset uses nostrsdk.DefaultOptions()")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(syncCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}

// clientOptions resolves nostrsdk.Options for this run: DefaultOptions()
// unless --config points at a YAML document, in which case the configured
// relay policy, gossip block, and caching engine (pkg/config.Config's
// RelayOptions/GossipOptions/CacheOptions converters) back the client
// instead of the built-in defaults.
func clientOptions() (nostrsdk.Options, error) {
	configPath, _ := rootCmd.PersistentFlags().GetString("config")
	if configPath == "" {
		return nostrsdk.DefaultOptions(), nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nostrsdk.Options{}, fmt.Errorf("load config: %w", err)
	}

	opts := nostrsdk.DefaultOptions()
	opts.RelayOptions = cfg.RelayOptions()
	if gopts, enabled := cfg.GossipOptions(); enabled {
		opts.Gossip = &gopts
	} else {
		opts.Gossip = nil
	}
	seenCache, err := cfg.CacheOptions()
	if err != nil {
		return nostrsdk.Options{}, fmt.Errorf("build cache: %w", err)
	}
	opts.Cache = seenCache
	return opts, nil
}

func newClient(relayURL string) (*nostrsdk.Client, relayurl.RelayURL, error) {
	u, err := relayurl.Parse(relayURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid relay url: %w", err)
	}
	opts, err := clientOptions()
	if err != nil {
		return nil, "", err
	}
	c := nostrsdk.New(opts)
	return c, u, nil
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a kind-1 text note to a relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		relayURL, _ := cmd.Flags().GetString("relay")
		content, _ := cmd.Flags().GetString("content")
		secretKey, _ := cmd.Flags().GetString("seckey")

		c, u, err := newClient(relayURL)
		if err != nil {
			return err
		}
		defer c.Shutdown()

		if secretKey == "" {
			secretKey = nostr.GeneratePrivateKey()
		}
		signer := relay.NewKeySigner(secretKey)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		c.AddRelay(ctx, u, stats.Read|stats.Write, true)

		pubkey, err := signer.PubKey(ctx)
		if err != nil {
			return fmt.Errorf("derive pubkey: %w", err)
		}
		evt := &nostr.Event{
			PubKey:    pubkey,
			Kind:      1,
			Content:   content,
			CreatedAt: nostr.Now(),
		}
		if err := signer.SignEvent(ctx, evt); err != nil {
			return fmt.Errorf("sign event: %w", err)
		}

		out, err := c.SendEvent(ctx, evt, nil)
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		fmt.Printf("published %s (%d relays ok, %d failed)\n", evt.ID, len(out.Success), len(out.Failed))
		return nil
	},
}

func init() {
	publishCmd.Flags().String("relay", "ws://localhost:7777", "Relay URL")
	publishCmd.Flags().String("content", "hi", "Event content")
	publishCmd.Flags().String("seckey", "", "Hex-encoded secret key (generated if empty)")
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Subscribe to kind-1 notes and print them until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		relayURL, _ := cmd.Flags().GetString("relay")

		c, u, err := newClient(relayURL)
		if err != nil {
			return err
		}
		defer c.Shutdown()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		c.AddRelay(ctx, u, stats.Read, true)

		activity, err := c.Subscribe(ctx, "demo-sub", []nostr.Filter{{Kinds: []int{1}}}, relay.AutoClosePolicy{Kind: relay.NoAutoClose}, nil)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		fmt.Println("listening for kind-1 notes, press Ctrl+C to stop...")
		for {
			select {
			case a, ok := <-activity:
				if !ok {
					return nil
				}
				switch a.Kind {
				case relay.ActivityReceivedEvent:
					fmt.Printf("[%s] %s\n", a.Event.ID[:8], a.Event.Content)
				case relay.ActivityEose:
					fmt.Println("-- eose --")
				case relay.ActivityClosed:
					fmt.Printf("-- closed: %s --\n", a.Reason)
				}
			case <-sigCh:
				c.UnsubscribeAll(ctx)
				return nil
			}
		}
	},
}

func init() {
	subscribeCmd.Flags().String("relay", "ws://localhost:7777", "Relay URL")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a negentropy reconciliation dry-run against a relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		relayURL, _ := cmd.Flags().GetString("relay")

		c, u, err := newClient(relayURL)
		if err != nil {
			return err
		}
		defer c.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		c.AddRelay(ctx, u, stats.Read|stats.Write, true)

		results := c.Sync(ctx, nostr.Filter{Kinds: []int{1}}, negentropy.Options{
			Direction: negentropy.Both,
			DryRun:    true,
			Timeout:   20 * time.Second,
		}, nil)

		for _, r := range results {
			if r.Err != nil {
				fmt.Printf("%s: %v\n", r.URL, r.Err)
				continue
			}
			fmt.Printf("%s: have=%d need=%d\n", r.URL, len(r.Result.HaveIDs), len(r.Result.NeedIDs))
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().String("relay", "ws://localhost:7777", "Relay URL")
}
