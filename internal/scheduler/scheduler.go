package scheduler

import (
	"fmt"
	"log"
	"sync"

	"ledbar-controller/internal/config"
	"ledbar-controller/internal/core"

	"github.com/robfig/cron/v3"
)

// Scheduler queues control tokens into the loop on cron specs.
type Scheduler struct {
	cron           *cron.Cron
	store          map[cron.EntryID]config.ScheduleEntry
	commandChannel core.CommandChannel
	mu             sync.RWMutex
}

// NewScheduler creates a scheduler and registers the given entries.
// Entries with an unparsable spec are logged and skipped.
func NewScheduler(cmdChan core.CommandChannel, entries []config.ScheduleEntry) *Scheduler {
	s := &Scheduler{
		cron:           cron.New(),
		store:          make(map[cron.EntryID]config.ScheduleEntry),
		commandChannel: cmdChan,
	}
	for _, e := range entries {
		if _, err := s.Add(e.Spec, e.Command); err != nil {
			log.Printf("[Scheduler] %v", err)
		}
	}
	return s
}

// Start begins the cron job ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("[Scheduler] Started with %d schedules.", len(s.GetAll()))
}

// Stop halts the cron job ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[Scheduler] Stopped.")
}

// Add registers a job that queues command on spec.
func (s *Scheduler) Add(spec, command string) (cron.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.execute(command) })
	if err != nil {
		return 0, fmt.Errorf("add schedule '%s' -> '%s': %w", spec, command, err)
	}
	s.store[id] = config.ScheduleEntry{Spec: spec, Command: command}
	log.Printf("[Scheduler] Added schedule (ID %d): %s -> %s", id, spec, command)
	return id, nil
}

// GetAll returns a copy of the current schedules.
func (s *Scheduler) GetAll() map[cron.EntryID]config.ScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	newMap := make(map[cron.EntryID]config.ScheduleEntry, len(s.store))
	for k, v := range s.store {
		newMap[k] = v
	}
	return newMap
}

func (s *Scheduler) execute(command string) {
	log.Printf("[Scheduler] Queuing scheduled command: %s", command)
	if !s.commandChannel.TrySend(core.Command{Token: command, Source: "cron"}) {
		log.Printf("[Scheduler] Command queue full, dropping '%s'", command)
	}
}
