package problem

import "go.uber.org/zap"

// Reporter receives the diagnostics of problem setup. *zap.SugaredLogger
// satisfies it.
type Reporter interface {
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// RankReporter reports through logger on rank 0 and discards output on every
// other rank, so a distributed run prints each diagnostic once
func RankReporter(logger *zap.Logger, rank int) Reporter {
	if logger == nil || rank != 0 {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}
