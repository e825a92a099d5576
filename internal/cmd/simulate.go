package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ghostpni/ghostpni/internal/config"
	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/core/engine"
	"github.com/ghostpni/ghostpni/internal/core/rpc"
	"github.com/ghostpni/ghostpni/internal/observability"
	"github.com/ghostpni/ghostpni/internal/output"
)

const payloadStream = 0x94d049bb133111eb

var (
	simulateDuration     time.Duration
	simulateTransactions int
	simulateFailureRate  float64
	simulateMinLatency   time.Duration
	simulateMaxLatency   time.Duration
	simulateSeed         uint64
	simulateNetwork      string
	simulateNoStorm      bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the mimicry engine against a simulated network",
	Long: `Run the scheduler, gate and dispatcher in-process against a simulated
transport. No traffic leaves the machine. Synthetic transactions are
submitted at the start of the run; the run ends when all of them resolve
or --duration elapses, whichever comes first.

With --transactions 0 the engine only emits decoy traffic for the full
duration.`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().DurationVarP(&simulateDuration, "duration", "d", 30*time.Second, "Maximum run time")
	simulateCmd.Flags().IntVarP(&simulateTransactions, "transactions", "t", 1, "Synthetic real transactions to submit")
	simulateCmd.Flags().Float64Var(&simulateFailureRate, "failure-rate", 0.05, "Probability of a simulated endpoint failure (0-1)")
	simulateCmd.Flags().DurationVar(&simulateMinLatency, "min-latency", 20*time.Millisecond, "Minimum simulated latency")
	simulateCmd.Flags().DurationVar(&simulateMaxLatency, "max-latency", 250*time.Millisecond, "Maximum simulated latency")
	simulateCmd.Flags().Uint64Var(&simulateSeed, "seed", 0, "Seed for a reproducible schedule (0 = random)")
	simulateCmd.Flags().StringVarP(&simulateNetwork, "network", "n", "", "Network profile (default from config)")
	simulateCmd.Flags().BoolVar(&simulateNoStorm, "no-storm", false, "Do not request a storm when transactions are submitted")
	addOutputFlags(simulateCmd, "table|json|markdown")
}

// simulation is one in-process run.
type simulation struct {
	cfg          *config.Config
	network      core.Network
	transport    engine.Transport
	transactions int
	duration     time.Duration
	payloadRand  *rand.Rand
}

func runSimulate(cmd *cobra.Command, args []string) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	if simulateDuration <= 0 {
		return errors.New("--duration must be positive")
	}
	if simulateTransactions < 0 {
		return errors.New("--transactions must be non-negative")
	}
	if simulateFailureRate < 0 || simulateFailureRate > 1 {
		return errors.New("--failure-rate must be between 0 and 1")
	}
	if simulateMaxLatency < simulateMinLatency {
		return errors.New("--max-latency must not be below --min-latency")
	}

	overrides := map[string]any{}
	if cmd.Flags().Changed("network") {
		overrides["network"] = simulateNetwork
	}
	cfg, err := config.Load(cmd.Context(), overrides)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		cfg.Mimicry.Seed = simulateSeed
	}
	if simulateNoStorm {
		cfg.Mimicry.StormOnSubmit = false
	}

	network, err := cfg.ResolveNetwork()
	if err != nil {
		return err
	}

	sim := &simulation{
		cfg:          cfg,
		network:      network,
		transport:    rpc.NewSimulatedTransport(simulateMinLatency, simulateMaxLatency, simulateFailureRate, seededRand(cfg.Mimicry.Seed, scheduleStream^factoryStream)),
		transactions: simulateTransactions,
		duration:     simulateDuration,
		payloadRand:  seededRand(cfg.Mimicry.Seed, payloadStream),
	}

	report, err := sim.run(cmd.Context())
	if err != nil {
		return err
	}

	rendered, err := output.NewFormatter(format).FormatSimulation(report)
	if err != nil {
		return err
	}
	return writeRendered(cmd, rendered)
}

// run drives the controller until every submitted real resolves or the
// duration elapses.
func (s *simulation) run(parent context.Context) (*output.SimulationReport, error) {
	if parent == nil {
		parent = context.Background()
	}
	logger := observability.CLILogger

	controller, err := buildEngine(s.cfg, s.network, engineDeps{
		Transport: s.transport,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(parent, s.duration)
	defer cancel()

	started := time.Now()
	run := startEngine(ctx, controller)

	handles := make([]*engine.Handle, 0, s.transactions)
	for i := 0; i < s.transactions; i++ {
		payload, err := rpc.WrapRawTransaction(uint64(i+1), s.syntheticTransaction())
		if err != nil {
			cancel()
			_ = run.Wait(context.Background())
			return nil, err
		}
		handle, err := controller.Submit(ctx, payload)
		if err != nil {
			cancel()
			_ = run.Wait(context.Background())
			return nil, fmt.Errorf("submit synthetic transaction: %w", err)
		}
		handles = append(handles, handle)
	}

	if len(handles) == 0 {
		<-ctx.Done()
	}
	for _, handle := range handles {
		if _, err := handle.Wait(ctx); err != nil {
			break
		}
	}

	cancel()
	if err := run.Wait(context.Background()); err != nil {
		return nil, err
	}

	report := &output.SimulationReport{
		Network:  s.network.Name,
		Duration: time.Since(started).Round(time.Millisecond),
		Snapshot: controller.Snapshot(),
		Reals:    make([]core.RealStatus, 0, len(handles)),
	}
	for _, handle := range handles {
		if status, ok := controller.Lookup(handle.ID); ok {
			report.Reals = append(report.Reals, status)
		}
	}

	if logger != nil {
		logger.Debug("Simulation finished",
			zap.String("network", s.network.Name),
			zap.Int("transactions", len(handles)),
			zap.Int64("decoys_emitted", report.Snapshot.DecoysEmitted))
	}
	return report, nil
}

// syntheticTransaction returns random 0x-prefixed bytes shaped like a signed
// legacy transaction.
func (s *simulation) syntheticTransaction() string {
	buf := make([]byte, 110)
	for i := range buf {
		if s.payloadRand != nil {
			buf[i] = byte(s.payloadRand.UintN(256))
		} else {
			buf[i] = byte(rand.UintN(256))
		}
	}
	buf[0] = 0xf8
	return "0x" + hex.EncodeToString(buf)
}
