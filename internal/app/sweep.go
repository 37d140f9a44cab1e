package app

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"exam-duel-service/internal/domain"
)

// SweepReport counts what a sweep changed.
type SweepReport struct {
	Expired  int `json:"expired"`
	Reminded int `json:"reminded"`
}

// Sweep expires pending duels past their deadline and reminds challenged
// participants whose duel expires within the reminder window, once per duel.
func (s *DuelService) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := s.now()

	expired, err := s.store.ExpirePending(ctx, now)
	if err != nil {
		return report, err
	}
	for _, duel := range expired {
		report.Expired++
		s.observer.DuelTransition(domain.DuelExpired)
		s.publish(ctx, duel, domain.EventExpired, nil)
		s.notify(ctx, duel.ID, duel.ChallengerID, expiredText(duel, s.names(ctx, duel)))
	}

	expiring, err := s.store.ListPendingExpiring(ctx, now, now.Add(s.settings.ReminderWindow))
	if err != nil {
		return report, err
	}
	for _, duel := range expiring {
		if domain.IsSimulatedOpponent(duel.ChallengedID) {
			continue
		}
		ok, err := s.store.MarkReminded(ctx, duel.ID, now)
		if err != nil {
			return report, err
		}
		if !ok {
			continue
		}
		report.Reminded++
		s.notify(ctx, duel.ID, duel.ChallengedID, reminderText(duel, s.names(ctx, duel)))
	}

	if report.Expired > 0 || report.Reminded > 0 {
		s.log.WithFields(logrus.Fields{"expired": report.Expired, "reminded": report.Reminded}).Info("duel sweep")
	}
	return report, nil
}

// Stats summarises the participant's most recent completed duels.
func (s *DuelService) Stats(ctx context.Context, participantID string) (domain.DuelStats, error) {
	if _, err := s.store.GetParticipant(ctx, participantID); err != nil {
		return domain.DuelStats{}, err
	}
	duels, err := s.store.ListDuelsFor(ctx, participantID, domain.DuelCompleted, s.settings.StatsWindow)
	if err != nil {
		return domain.DuelStats{}, err
	}

	stats := domain.DuelStats{ParticipantID: participantID, Total: len(duels)}
	streakOpen := true
	// newest first
	for _, duel := range duels {
		switch {
		case duel.Result == domain.ResultTie:
			stats.Tied++
			streakOpen = false
		case duel.WinnerID == participantID:
			stats.Won++
			if streakOpen {
				stats.CurrentStreak++
			}
		default:
			stats.Lost++
			streakOpen = false
		}
	}
	if stats.Total > 0 {
		stats.WinRate = math.Round(float64(stats.Won) / float64(stats.Total) * 100)
	}
	return stats, nil
}
