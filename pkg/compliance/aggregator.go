package compliance

import (
	"fmt"
	"strings"
	"sync"
)

// Tier classifies a rendered alert line.
type Tier string

const (
	TierTerminal Tier = "terminal"
	TierCritical Tier = "critical"
	TierRisk     Tier = "risk"
	TierStatus   Tier = "status"
	TierWarning  Tier = "warning"
	TierSuccess  Tier = "success"
	TierPending  Tier = "pending"
)

// Alert is one renderable line of the compliance view.
type Alert struct {
	Tier Tier
	Text string
}

// View is the renderable result of applying the accumulated store plus the
// latest payload. Alert order is fixed by the stage pipeline below.
type View struct {
	Score  *int
	Status Status
	Alerts []Alert
}

type Config struct {
	EmpathyMin      int      `mapstructure:"empathy_min"`
	ClosingKeywords []string `mapstructure:"closing_keywords"`
}

func (c Config) withDefaults() Config {
	if c.EmpathyMin <= 0 {
		c.EmpathyMin = 1
	}
	if len(c.ClosingKeywords) == 0 {
		c.ClosingKeywords = []string{"closing", "goodbye", "thank you"}
	}
	// Matching is case-insensitive on both sides.
	for i, kw := range c.ClosingKeywords {
		c.ClosingKeywords[i] = strings.ToLower(kw)
	}
	return c
}

// Aggregator merges backend payloads into the session store and renders the
// alert view. It is the single writer of the store; callers on other
// goroutines go through its mutex.
type Aggregator struct {
	mu        sync.Mutex
	cfg       Config
	store     *Store
	callEnded bool
	lastScore *int
	last      Payload
}

func NewAggregator(cfg Config) *Aggregator {
	return &Aggregator{
		cfg:   cfg.withDefaults(),
		store: NewStore(),
	}
}

// Apply merges one payload into the store and returns the refreshed view.
// The merge steps are unconditional on each other: set unions for critical,
// risk and pending, pending removal plus wholesale replacement for completed.
func (a *Aggregator) Apply(p Payload) View {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, v := range p.CriticalViolations {
		a.store.critical.Add(v)
	}
	for _, v := range p.RiskViolations {
		a.store.risk.Add(v)
	}
	for _, v := range p.MissingSteps {
		a.store.pending.Add(v)
	}
	for _, v := range p.CompletedSteps {
		a.store.pending.Remove(v)
	}
	a.store.completed = append([]string(nil), p.CompletedSteps...)

	if p.Score != nil {
		score := *p.Score
		a.lastScore = &score
	}
	if p.Status.Terminal() {
		a.callEnded = true
	}
	a.last = p

	return a.render()
}

// View re-renders the current store against the last applied payload, for
// consumers that need a refresh without new input (call ended, late observer).
func (a *Aggregator) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.render()
}

// EndCall marks the call ended, lifting closing-keyword suppression.
func (a *Aggregator) EndCall() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callEnded = true
}

// Reset clears every accumulator and the call-ended flag. Only an explicit
// user action triggers this; no payload ever does.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store.reset()
	a.callEnded = false
	a.lastScore = nil
	a.last = Payload{}
}

func (a *Aggregator) CallEnded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.callEnded
}

func (a *Aggregator) Critical() []string  { a.mu.Lock(); defer a.mu.Unlock(); return a.store.Critical() }
func (a *Aggregator) Risk() []string      { a.mu.Lock(); defer a.mu.Unlock(); return a.store.Risk() }
func (a *Aggregator) Pending() []string   { a.mu.Lock(); defer a.mu.Unlock(); return a.store.Pending() }
func (a *Aggregator) Completed() []string { a.mu.Lock(); defer a.mu.Unlock(); return a.store.Completed() }

// renderStage appends its alerts to the view. Stages run in fixed order; the
// terminal banner is computed last and prepended.
type renderStage func(a *Aggregator, p Payload, v *View)

var renderStages = []renderStage{
	stageCritical,
	stageRisk,
	stageStatus,
	stageDetections,
	stageEmpathy,
	stageCompleted,
	stagePending,
	stageFreeform,
}

func (a *Aggregator) render() View {
	p := a.last
	v := View{Status: p.Status}
	if a.lastScore != nil {
		score := *a.lastScore
		v.Score = &score
	}
	for _, stage := range renderStages {
		stage(a, p, &v)
	}
	if banner, ok := terminalBanner(p.Status); ok {
		v.Alerts = append([]Alert{banner}, v.Alerts...)
	}
	return v
}

func stageCritical(a *Aggregator, _ Payload, v *View) {
	for _, text := range a.store.critical.items {
		v.Alerts = append(v.Alerts, Alert{Tier: TierCritical, Text: text})
	}
}

func stageRisk(a *Aggregator, _ Payload, v *View) {
	for _, text := range a.store.risk.items {
		v.Alerts = append(v.Alerts, Alert{Tier: TierRisk, Text: text})
	}
}

func stageStatus(a *Aggregator, p Payload, v *View) {
	if p.Status == StatusInProgress {
		v.Alerts = append(v.Alerts, Alert{Tier: TierStatus, Text: "Call in progress"})
	}
	if a.lastScore != nil {
		v.Alerts = append(v.Alerts, Alert{Tier: TierStatus, Text: fmt.Sprintf("Compliance score %d%%", *a.lastScore)})
	}
}

func stageDetections(_ *Aggregator, p Payload, v *View) {
	if p.HighRiskDetected {
		v.Alerts = append(v.Alerts, Alert{Tier: TierCritical, Text: "High-risk language detected"})
	}
	if p.PriorityCaseDetected {
		v.Alerts = append(v.Alerts, Alert{Tier: TierWarning, Text: "Priority case, escalate immediately"})
	}
}

func stageEmpathy(a *Aggregator, p Payload, v *View) {
	if p.EmpathyCount == nil {
		return
	}
	n := *p.EmpathyCount
	if n >= a.cfg.EmpathyMin {
		v.Alerts = append(v.Alerts, Alert{Tier: TierSuccess, Text: fmt.Sprintf("Empathy statements: %d/%d", n, a.cfg.EmpathyMin)})
		return
	}
	v.Alerts = append(v.Alerts, Alert{Tier: TierWarning, Text: fmt.Sprintf("Empathy statements: %d/%d, need more", n, a.cfg.EmpathyMin)})
}

func stageCompleted(a *Aggregator, _ Payload, v *View) {
	completed := a.store.completed
	show := len(completed)
	if show > 3 {
		show = 3
	}
	for i := 0; i < show; i++ {
		v.Alerts = append(v.Alerts, Alert{Tier: TierSuccess, Text: "Completed: " + completed[i]})
	}
	if len(completed) > 3 {
		v.Alerts = append(v.Alerts, Alert{Tier: TierSuccess, Text: fmt.Sprintf("+%d more steps completed", len(completed)-3)})
	}
}

func stagePending(a *Aggregator, _ Payload, v *View) {
	for _, text := range a.store.pending.items {
		if !a.callEnded && a.isClosingRelated(text) {
			continue
		}
		v.Alerts = append(v.Alerts, Alert{Tier: TierPending, Text: "Missing: " + text})
	}
}

func stageFreeform(_ *Aggregator, p Payload, v *View) {
	for _, text := range p.Alerts {
		if containsString(p.MissingSteps, text) {
			continue
		}
		v.Alerts = append(v.Alerts, Alert{Tier: TierWarning, Text: text})
	}
}

func terminalBanner(s Status) (Alert, bool) {
	switch s {
	case StatusPass:
		return Alert{Tier: TierTerminal, Text: "All script requirements met"}, true
	case StatusFail:
		return Alert{Tier: TierTerminal, Text: "Script compliance failed"}, true
	}
	return Alert{}, false
}

// isClosingRelated hides call-ending reminders until the call actually ends.
// Suppression only affects the render; the store keeps the entry.
func (a *Aggregator) isClosingRelated(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range a.cfg.ClosingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
