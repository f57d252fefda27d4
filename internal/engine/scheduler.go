package engine

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/liminalvillage/integral-sub001/internal/ledger"
)

// decaySweepSchedule runs ApplyDecay across every known ITC account once
// an hour; half-life/grace-day windows are measured in days, so an hourly
// cadence is frequent enough that no account drifts far past its grace
// period before decay catches up.
const decaySweepSchedule = "0 * * * *"

// findingsSweepSchedule re-analyzes the most recently created signal
// packet every 15 minutes, giving FRS's diagnostic findings a standing
// cadence independent of any caller remembering to invoke analyze_findings.
const findingsSweepSchedule = "*/15 * * * *"

// Scheduler owns the engine's periodic sweeps. Grounded on the teacher's
// automation scheduler shape (start/stop around background goroutines);
// the teacher rolls its own ticker loop, this uses robfig/cron/v3 for
// actual cron-expression scheduling instead.
type Scheduler struct {
	engine *Engine
	cron   *cron.Cron
}

// NewScheduler builds a Scheduler bound to e but does not start it.
func NewScheduler(e *Engine) *Scheduler {
	return &Scheduler{engine: e, cron: cron.New()}
}

// Start registers the sweep jobs and begins running them in the
// background. It returns once registration succeeds; jobs run on cron's
// own goroutine until Stop is called.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(decaySweepSchedule, s.runDecaySweep); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(findingsSweepSchedule, s.runFindingsSweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop blocks until any in-flight job finishes, then stops the scheduler.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runDecaySweep() {
	ctx := context.Background()
	accounts, err := s.engine.ITC.AccountsByNode(ctx)
	if err != nil {
		s.engine.logger.WithError(err).Error("decay sweep: list accounts")
		return
	}
	for _, account := range accounts {
		if _, err := s.engine.ITC.ApplyDecay(ctx, account.MemberID); err != nil {
			s.engine.logger.WithError(err).WithFields(map[string]interface{}{
				"member_id": account.MemberID,
			}).Warn("decay sweep: apply decay")
		}
	}
}

func (s *Scheduler) runFindingsSweep() {
	ctx := context.Background()
	packetID, err := s.engine.lastSignalPacketID(ctx)
	if err != nil {
		s.engine.logger.WithError(err).Warn("findings sweep: find latest signal packet")
		return
	}
	if packetID == "" {
		return
	}
	findings, err := s.engine.FRS.AnalyzePacket(ctx, packetID)
	if err != nil {
		s.engine.logger.WithError(err).Warn("findings sweep: analyze packet")
		return
	}
	if len(findings) == 0 {
		return
	}
	ids := make([]string, len(findings))
	for i, f := range findings {
		ids[i] = f.ID
	}
	recommendations, err := s.engine.FRS.GenerateRecommendations(ctx, ids)
	if err != nil {
		s.engine.logger.WithError(err).Warn("findings sweep: generate recommendations")
		return
	}
	if err := s.engine.RouteRecommendations(ctx, recommendations); err != nil {
		s.engine.logger.WithError(err).Warn("findings sweep: route recommendations")
	}
}
