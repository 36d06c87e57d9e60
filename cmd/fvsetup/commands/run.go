package commands

import (
	"fmt"
	"math"
	"time"

	"github.com/notargets/FVProblem/config"
	"github.com/notargets/FVProblem/kernels"
	"github.com/notargets/FVProblem/level"
	"github.com/notargets/FVProblem/problem"
	"github.com/notargets/FVProblem/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var configPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build a level and initialize the manufactured problem on it",
	Long: `Build a decomposed level and fill alpha, beta_i/j/k, u_exact and f.

Every rank of the decomposition runs in-process and reductions go through a
shared communicator. Without --config a 64³ Dirichlet Poisson problem with
variable coefficients is set up.

Example run.yaml:

  grid:
    dim: 64
    box_dim: 16
    ghosts: 1
    boundary: periodic
    ranks: 4
    strategy: morton
  problem:
    a: 0
    b: 1
    coefficients: variable
  device:
    mode: OpenMP`,
	RunE: runSetup,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to run.yaml")
	rootCmd.AddCommand(runCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	} else if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Log.Verbose && !verbose {
		debugLogger, err := newLogger(true)
		if err != nil {
			return err
		}
		defer func() { _ = debugLogger.Sync() }()
		log = debugLogger
	}

	summary, err := setupProblem(cfg, log)
	if err != nil {
		return err
	}
	summary.log(log)
	return nil
}

// Summary describes an initialized level
type Summary struct {
	Layout  level.LayoutStats
	Cells   int
	Alpha   level.AlphaState
	Fields  [level.NumFields]level.FieldStats
	Elapsed time.Duration
}

func (s *Summary) log(logger *zap.Logger) {
	logger.Info("problem initialized",
		zap.Int("cells", s.Cells),
		zap.Int("ranks", s.Layout.NumRanks),
		zap.Int("min_boxes", s.Layout.MinBoxes),
		zap.Int("max_boxes", s.Layout.MaxBoxes),
		zap.Float64("imbalance", s.Layout.Imbalance),
		zap.Stringer("alpha", s.Alpha),
		zap.Duration("elapsed", s.Elapsed),
	)
	for _, f := range level.Fields() {
		st := s.Fields[f]
		logger.Info("field statistics",
			zap.Stringer("field", f),
			zap.Float64("min", st.Min),
			zap.Float64("max", st.Max),
			zap.Float64("mean", st.Mean),
			zap.Float64("l2", st.L2),
		)
	}
}

// setupProblem runs every rank of cfg in its own goroutine and gathers the
// field statistics. Min and max are combined across ranks here because the
// communicator only reduces sums.
func setupProblem(cfg *config.RunConfig, logger *zap.Logger) (*Summary, error) {
	lb := cfg.LevelBuilder()
	layout, err := lb.BuildLayout()
	if err != nil {
		return nil, err
	}

	var populator problem.Populator = problem.HostPopulator{}
	if cfg.Device.Mode != "" {
		device, err := utils.NewDevice(cfg.Device.Mode)
		if err != nil {
			return nil, err
		}
		defer device.Free()
		populator = kernels.NewDevicePopulator(device)
		logger.Debug("populating on device", zap.String("mode", device.Mode()))
	}

	numRanks := layout.NumRanks
	group := level.NewLocalGroup(numRanks)
	perRank := make([][level.NumFields]level.FieldStats, numRanks)
	alpha := make([]level.AlphaState, numRanks)

	start := time.Now()
	var g errgroup.Group
	for rank := 0; rank < numRanks; rank++ {
		g.Go(func() error {
			lvl, err := lb.Build(rank, group.Member(rank))
			if err != nil {
				return err
			}
			logger.Debug("rank level built", zap.Int("rank", rank), zap.Int("boxes", len(lvl.Boxes)))

			in := &problem.Initializer{
				Config:    cfg.InitializerConfig(),
				Reporter:  problem.RankReporter(logger, rank),
				Populator: populator,
			}
			if err := in.InitializeProblem(lvl, cfg.H(), cfg.Problem.A, cfg.Problem.B); err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}

			alpha[rank] = lvl.AlphaState()
			for _, f := range level.Fields() {
				perRank[rank][f] = lvl.Statistics(f)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{
		Layout:  layout.Statistics(),
		Cells:   cfg.Grid.Dim * cfg.Grid.Dim * cfg.Grid.Dim,
		Alpha:   alpha[0],
		Elapsed: time.Since(start),
	}
	for _, f := range level.Fields() {
		st := perRank[0][f]
		for rank := 1; rank < numRanks; rank++ {
			st.Min = math.Min(st.Min, perRank[rank][f].Min)
			st.Max = math.Max(st.Max, perRank[rank][f].Max)
		}
		summary.Fields[f] = st
	}
	return summary, nil
}
