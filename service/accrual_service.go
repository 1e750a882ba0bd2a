package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/bebewat/wrecksshop/events"
	"github.com/bebewat/wrecksshop/models"
	"github.com/bebewat/wrecksshop/rcon"
)

const (
	defaultAccrualInterval = 15 * time.Minute
	listPlayersCommand     = "ListPlayers"
)

// PlayerLister parses an RCON player roster. Injected so tests can substitute
// a canned roster.
type PlayerLister func(response string) []rcon.OnlinePlayer

// AccrualConfig tunes the playtime accrual poll.
type AccrualConfig struct {
	// Interval between roster polls. Also the upper bound on elapsed time
	// credited per poll, so a bot outage never produces a retroactive windfall.
	Interval time.Duration

	// PointsPerMinute of observed playtime.
	PointsPerMinute int64
}

// AccrualService periodically polls every reachable server for its online
// roster and credits players for the playtime observed between polls.
type AccrualService struct {
	ledger     LedgerService
	dispatcher CommandDispatcher
	bus        *events.Bus
	parse      PlayerLister
	cfg        AccrualConfig
	cron       *cron.Cron

	mu       sync.Mutex
	lastSeen map[string]time.Time // playerID -> last roster sighting
}

// NewAccrualService creates a new playtime accrual service
func NewAccrualService(ledger LedgerService, dispatcher CommandDispatcher, bus *events.Bus, cfg AccrualConfig) *AccrualService {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultAccrualInterval
	}
	return &AccrualService{
		ledger:     ledger,
		dispatcher: dispatcher,
		bus:        bus,
		parse:      rcon.ParsePlayerList,
		cfg:        cfg,
		lastSeen:   make(map[string]time.Time),
	}
}

// Start schedules the recurring poll. Stop cancels it.
func (s *AccrualService) Start(ctx context.Context) error {
	cronLogger := cron.PrintfLogger(log.StandardLogger())
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := s.cron.AddFunc(spec, func() {
		s.Poll(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule accrual poll: %w", err)
	}

	s.cron.Start()
	log.WithField("interval", s.cfg.Interval).Info("Playtime accrual started")
	return nil
}

// Stop halts the schedule and waits for an in-progress poll to finish.
func (s *AccrualService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Poll runs one accrual pass over every server in the pool. Individual
// server failures are logged and skipped so one downed server never stalls
// accrual for the rest.
func (s *AccrualService) Poll(ctx context.Context) {
	now := time.Now()
	seen := make(map[string]struct{})

	for _, serverID := range s.dispatcher.ServerIDs() {
		if s.dispatcher.ServerState(serverID) != rcon.StateConnected {
			continue
		}

		response, err := s.dispatcher.Execute(ctx, serverID, listPlayersCommand, "")
		if err != nil {
			log.WithField("server", serverID).WithError(err).Warn("Roster poll failed")
			continue
		}

		players := s.parse(response)
		var total int64
		for _, p := range players {
			seen[p.PlayerID] = struct{}{}
			total += s.creditPlayer(ctx, p.PlayerID, serverID, now)
		}

		s.bus.Emit(ctx, events.PointsAccruedEvent{
			ServerID:     serverID,
			PlayersSeen:  len(players),
			TotalCredits: total,
		})
	}

	// Players absent from every roster have logged off; their clock restarts
	// on the next sighting.
	s.mu.Lock()
	for playerID := range s.lastSeen {
		if _, ok := seen[playerID]; !ok {
			delete(s.lastSeen, playerID)
		}
	}
	s.mu.Unlock()
}

// creditPlayer converts the time since the player's last sighting into
// points. Elapsed time is clamped to one interval, and only whole credited
// minutes advance the clock so sub-minute remainders carry into the next
// poll.
func (s *AccrualService) creditPlayer(ctx context.Context, playerID, serverID string, now time.Time) int64 {
	s.mu.Lock()
	last, ok := s.lastSeen[playerID]
	if !ok {
		// First sighting starts the clock and creates the player row, so
		// the account exists before any playtime accrues.
		s.lastSeen[playerID] = now
		s.mu.Unlock()
		if err := s.ledger.EnsurePlayer(ctx, playerID); err != nil {
			log.WithFields(log.Fields{
				"player": playerID,
				"server": serverID,
			}).WithError(err).Warn("Failed to create player on first sighting")
		}
		return 0
	}

	elapsed := now.Sub(last)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > s.cfg.Interval {
		// A missed poll credits at most one interval and the clock restarts.
		elapsed = s.cfg.Interval
		s.lastSeen[playerID] = now
	} else {
		// Only whole credited minutes advance the clock, carrying sub-minute
		// remainders into the next poll.
		s.lastSeen[playerID] = last.Add(elapsed / time.Minute * time.Minute)
	}
	minutes := int64(elapsed / time.Minute)
	s.mu.Unlock()

	points := minutes * s.cfg.PointsPerMinute
	if points <= 0 {
		return 0
	}

	if _, err := s.ledger.Credit(ctx, playerID, points, models.EntryReasonPlaytime); err != nil {
		log.WithFields(log.Fields{
			"player": playerID,
			"server": serverID,
			"points": points,
		}).WithError(err).Error("Failed to credit playtime")
		return 0
	}
	return points
}
