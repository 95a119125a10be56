package bot

import (
	"sync"
	"time"
)

// Dialog action identifiers: the next free-text message from the user is the
// input for this action.
const (
	ActionBroadcast      = "broadcast"
	ActionSetRules       = "set_rules"
	ActionSetContentPlan = "set_content_plan"
	ActionNewTask        = "new_task"
	ActionNewCampaign    = "new_campaign"
	ActionAdjustPoints   = "adjust_points"
	ActionGrantBadge     = "grant_badge"
	ActionRemoveBadge    = "remove_badge"
	ActionCompleteTask   = "complete_task"
	ActionReportRange    = "report_range"
)

// Dialog is one in-progress multi-step interaction. Fields accumulates the
// answers collected so far keyed by prompt name.
type Dialog struct {
	Action  string
	Step    int
	Fields  map[string]string
	started time.Time
}

// DialogStore tracks which users are mid-flow. Entries expire so an
// abandoned prompt stops capturing messages.
type DialogStore struct {
	mu      sync.Mutex
	dialogs map[int64]*Dialog
	ttl     time.Duration
}

func NewDialogStore(ttl time.Duration) *DialogStore {
	return &DialogStore{dialogs: make(map[int64]*Dialog), ttl: ttl}
}

// Begin starts a new dialog for the user, replacing any previous one.
func (s *DialogStore) Begin(userID int64, action string) *Dialog {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &Dialog{Action: action, Fields: make(map[string]string), started: time.Now()}
	s.dialogs[userID] = d
	return d
}

// Active returns the user's dialog, lazily expiring stale ones.
func (s *DialogStore) Active(userID int64) (*Dialog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dialogs[userID]
	if !ok {
		return nil, false
	}
	if time.Since(d.started) > s.ttl {
		delete(s.dialogs, userID)
		return nil, false
	}
	return d, true
}

// Clear drops the user's dialog.
func (s *DialogStore) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dialogs, userID)
}
