// Package cleanup は期限切れのインメモリ状態を定期的に掃除するジョブを提供する。
// ログインセッションとフィードセッションは再起動で失われる前提のため、
// 永続化せずにメモリ上で保持し、TTLを超えたものをこのジョブで破棄する。
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper は期限切れエントリを削除し、削除件数を返す。
type Sweeper interface {
	Sweep(now time.Time) int
}

// SweeperFunc は関数をSweeperとして扱うためのアダプター。
type SweeperFunc func(now time.Time) int

// Sweep はf(now)を呼び出す。
func (f SweeperFunc) Sweep(now time.Time) int {
	return f(now)
}

type namedSweeper struct {
	name    string
	sweeper Sweeper
}

// Janitor は登録されたSweeperを一定間隔で実行する。
type Janitor struct {
	logger   *slog.Logger
	sweepers []namedSweeper
	now      func() time.Time
}

// NewJanitor は新しいJanitorを生成する。
func NewJanitor(logger *slog.Logger) *Janitor {
	return &Janitor{
		logger: logger,
		now:    time.Now,
	}
}

// Register は名前付きでSweeperを登録する。Start前に呼び出すこと。
func (j *Janitor) Register(name string, s Sweeper) {
	j.sweepers = append(j.sweepers, namedSweeper{name: name, sweeper: s})
}

// Start はintervalごとにRunOnceを実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (j *Janitor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("sweepers", len(j.sweepers)),
	)

	j.RunOnce()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			j.RunOnce()
		}
	}
}

// RunOnce は全Sweeperを1回ずつ実行し、合計削除件数を返す。
func (j *Janitor) RunOnce() int {
	start := j.now()
	total := 0

	for _, s := range j.sweepers {
		n := s.sweeper.Sweep(start)
		total += n
		if n > 0 {
			j.logger.Info("期限切れエントリを削除しました",
				slog.String("target", s.name),
				slog.Int("deleted_count", n),
			)
		}
	}

	j.logger.Debug("クリーンアップサイクルが完了しました",
		slog.Int("deleted_count", total),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return total
}
