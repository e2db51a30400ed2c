package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/bowerhall/docsage/internal/logger"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarn:
		return "warn"
	default:
		return "info"
	}
}

// NotifyFunc delivers an alert to the operator, typically an admin chat.
type NotifyFunc func(message string)

// Alerter forwards operator alerts, suppressing repeats of the same
// component/message pair within the cooldown.
type Alerter struct {
	mu        sync.Mutex
	notify    NotifyFunc
	cooldowns map[string]time.Time
	cooldown  time.Duration
	now       func() time.Time
}

func New(notify NotifyFunc, cooldown time.Duration) *Alerter {
	return &Alerter{
		notify:    notify,
		cooldowns: make(map[string]time.Time),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// SetNotify swaps the delivery function, used once a bot is connected.
func (a *Alerter) SetNotify(notify NotifyFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notify = notify
}

func (a *Alerter) Alert(severity Severity, component, message string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := fmt.Sprintf("%s:%s", component, message)

	if lastSent, ok := a.cooldowns[key]; ok && a.now().Sub(lastSent) < a.cooldown {
		logger.Debug("alert suppressed (cooldown)", "component", component, "message", message)
		return
	}

	text := fmt.Sprintf("[%s] %s: %s", severity, component, message)
	if err != nil {
		text += fmt.Sprintf("\n\nError: %v", err)
	}

	if a.notify == nil {
		logger.Warn("alert (no notifier)", "component", component, "severity", severity, "message", message, "error", err)
		return
	}

	a.notify(text)
	a.cooldowns[key] = a.now()
	logger.Info("alert sent", "component", component, "severity", severity)
}

func (a *Alerter) Critical(component, message string, err error) {
	a.Alert(SeverityCritical, component, message, err)
}

func (a *Alerter) Warn(component, message string, err error) {
	a.Alert(SeverityWarn, component, message, err)
}

func (a *Alerter) Info(component, message string) {
	a.Alert(SeverityInfo, component, message, nil)
}
