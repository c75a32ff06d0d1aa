package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chit-chat/simulator"

	"github.com/spf13/cobra"
)

var cfg = simulator.DefaultSimConfig()

var rootCmd = &cobra.Command{
	Use:   "simulator",
	Short: "Drive a chit-chat server with fake users",
	Long:  `Registers fake users against a running server, builds a follow graph and simulates chatting.`,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create users and an initial follow graph, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		sim := simulator.NewSimulator(cfg)
		if err := sim.Seed(cmd.Context()); err != nil {
			return err
		}
		printMetrics(sim.GetMetrics())
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Seed users and simulate activity for the configured duration",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Printf("Starting simulation with configuration:")
		log.Printf("- Engine URL: %s", cfg.EngineURL)
		log.Printf("- Number of users: %d", cfg.NumUsers)
		log.Printf("- Simulation time: %v", cfg.SimulationTime)
		log.Printf("- Message frequency: %.2f messages/user/hour", cfg.MessageFrequency)
		log.Printf("- Zipf parameter: %.2f", cfg.ZipfS)

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.SimulationTime)
		defer cancel()

		sim := simulator.NewSimulator(cfg)
		if err := sim.Run(ctx); err != nil {
			return err
		}
		printMetrics(sim.GetMetrics())
		return nil
	},
}

func printMetrics(m simulator.SimulationMetrics) {
	log.Printf("Simulation completed. Final metrics:")
	log.Printf("- Total users: %d", m.TotalUsers)
	log.Printf("- Requests: %d (failed %d, %.1f/s)", m.TotalRequests, m.FailedRequests, m.RequestsPerSec)
	log.Printf("- Follows: %d", m.Follows)
	log.Printf("- Messages: %d", m.Messages)
	log.Printf("- Typing signals: %d", m.TypingSignals)
	log.Printf("- Accepted requests: %d", m.Accepted)
	log.Printf("- Average latency: %v", m.AverageLatency)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.EngineURL, "url", cfg.EngineURL, "base URL of the chit-chat server")
	flags.IntVarP(&cfg.NumUsers, "users", "n", cfg.NumUsers, "number of users to register")
	flags.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent request workers")
	flags.Float64Var(&cfg.FollowProbability, "follow-share", cfg.FollowProbability, "share of the user base each user follows")
	flags.Float64Var(&cfg.ZipfS, "zipf", cfg.ZipfS, "Zipf exponent for picking popular users (>1)")
	flags.StringVar(&cfg.Password, "password", cfg.Password, "password for every fake user")
	flags.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")

	runCmd.Flags().DurationVarP(&cfg.SimulationTime, "duration", "d", cfg.SimulationTime, "how long to simulate")
	runCmd.Flags().Float64Var(&cfg.MessageFrequency, "message-rate", cfg.MessageFrequency, "messages per user per hour")
	runCmd.Flags().Float64Var(&cfg.TypingProbability, "typing", cfg.TypingProbability, "chance of an on-input signal before a message")
	runCmd.Flags().Float64Var(&cfg.AcceptProbability, "accept", cfg.AcceptProbability, "chance a pending request is accepted per check")

	rootCmd.AddCommand(seedCmd, runCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}
}
