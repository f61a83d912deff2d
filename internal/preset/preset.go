// Package preset implements the schedule-driven admission layer that sits
// between the orchestrator and the order gateway. Presets are read-only
// configuration; the only mutable state here is the per-key cooldown ledger.
package preset

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mss-enginev1/internal/model"
	"mss-enginev1/internal/session"
)

// Preset bundles the admission limits applied while it is active.
type Preset struct {
	Name             string            `yaml:"name" validate:"required"`
	Cooldown         time.Duration     `yaml:"cooldown" default:"30m"`
	MaxOpenPositions int               `yaml:"max_open_positions" default:"1" validate:"gte=0"`
	SessionFilter    bool              `yaml:"session_filter"`
	AllowedSessions  []session.Session `yaml:"allowed_sessions" validate:"dive,oneof=asia london overlap newyork off"`
	LabelFocus       []string          `yaml:"label_focus"`
	Killzone         *session.Window   `yaml:"killzone"`
}

// UnmarshalYAML accepts the cooldown as a duration string ("45m", "1h30m");
// yaml.v3 does not decode time.Duration natively. An absent cooldown stays
// zero so the default tag applies.
func (p *Preset) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		Name             string            `yaml:"name"`
		Cooldown         string            `yaml:"cooldown"`
		MaxOpenPositions int               `yaml:"max_open_positions"`
		SessionFilter    bool              `yaml:"session_filter"`
		AllowedSessions  []session.Session `yaml:"allowed_sessions"`
		LabelFocus       []string          `yaml:"label_focus"`
		Killzone         *session.Window   `yaml:"killzone"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	p.Name = raw.Name
	p.MaxOpenPositions = raw.MaxOpenPositions
	p.SessionFilter = raw.SessionFilter
	p.AllowedSessions = raw.AllowedSessions
	p.LabelFocus = raw.LabelFocus
	p.Killzone = raw.Killzone
	if raw.Cooldown != "" {
		d, err := time.ParseDuration(raw.Cooldown)
		if err != nil {
			return fmt.Errorf("preset %q cooldown: %w", raw.Name, err)
		}
		p.Cooldown = d
	}
	return nil
}

// Schedule binds a preset to a day-of-week set and a UTC window.
// Windows may wrap midnight; the weekday test applies at "now".
type Schedule struct {
	Preset string         `yaml:"preset" validate:"required"`
	Days   []string       `yaml:"days" validate:"min=1,dive,oneof=mon tue wed thu fri sat sun"`
	Window session.Window `yaml:"window"`
}

// Document is the externally loaded preset/schedule configuration.
type Document struct {
	Presets   []Preset   `yaml:"presets" validate:"dive"`
	Schedules []Schedule `yaml:"schedules" validate:"dive"`
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// matches reports whether the schedule is active at now (UTC).
func (s Schedule) matches(now time.Time) bool {
	u := now.UTC()
	ok := false
	for _, d := range s.Days {
		if weekdays[d] == u.Weekday() {
			ok = true
			break
		}
	}
	return ok && s.Window.Contains(u)
}

// defaultPreset is active whenever no presets are configured at all.
// It carries no restrictions.
var defaultPreset = Preset{Name: "Default"}

// Decision is the outcome of one admission attempt.
type Decision struct {
	Admitted bool
	Preset   string // preset that admitted, or "" on rejection
	Reason   string // rejection reason, or "" on admission
	Killzone bool   // admitted via the killzone fallback path
	Label    string // final signal label (annotated on killzone fallback)
}

// Admission resolves active presets per evaluation time and applies their
// gates to submitted signals.
type Admission struct {
	doc     Document
	byName  map[string]*Preset
	gateway model.OrderGateway

	lastAdmitted map[string]time.Time // cooldown key -> admission time
}

// NewAdmission builds the admission layer over a validated document.
func NewAdmission(doc Document, gateway model.OrderGateway) *Admission {
	byName := make(map[string]*Preset, len(doc.Presets))
	for i := range doc.Presets {
		byName[doc.Presets[i].Name] = &doc.Presets[i]
	}
	return &Admission{
		doc:          doc,
		byName:       byName,
		gateway:      gateway,
		lastAdmitted: make(map[string]time.Time),
	}
}

// Active resolves every schedule matching now to its preset. Multiple
// presets may be simultaneously active. With zero presets configured the
// built-in unrestricted Default applies at all times.
func (a *Admission) Active(now time.Time) []*Preset {
	if len(a.doc.Presets) == 0 {
		return []*Preset{&defaultPreset}
	}
	var out []*Preset
	seen := make(map[string]bool, 4)
	for _, s := range a.doc.Schedules {
		if !s.matches(now) {
			continue
		}
		p, ok := a.byName[s.Preset]
		if !ok || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out
}

// Admit decides whether the signal passes the preset layer at now.
// A signal is admitted when any active preset passes all of its gates:
// per-key cooldown, open-position cap, session filter, label focus. When
// every active preset fails only on label focus, the killzone fallback of
// any active preset may still admit it with an annotated label.
func (a *Admission) Admit(sig *model.TradeSignal, now time.Time) Decision {
	active := a.Active(now)
	if len(active) == 0 {
		return Decision{Reason: "no_active_preset", Label: sig.Label}
	}

	key := sig.CooldownKey()
	lastReason := ""
	for _, p := range active {
		reason, ok := a.check(p, sig, key, now, true)
		if ok {
			a.lastAdmitted[key] = now
			return Decision{Admitted: true, Preset: p.Name, Label: sig.Label}
		}
		lastReason = reason
	}

	// killzone fallback: label focus is waived, the hard limits are not
	for _, p := range active {
		if p.Killzone == nil || !p.Killzone.Contains(now) {
			continue
		}
		if reason, ok := a.check(p, sig, key, now, false); !ok {
			lastReason = reason
			continue
		}
		a.lastAdmitted[key] = now
		slog.Debug("signal admitted via killzone fallback",
			"symbol", sig.Symbol, "preset", p.Name)
		return Decision{
			Admitted: true,
			Preset:   p.Name,
			Killzone: true,
			Label:    sig.Label + ":KILLZONE",
		}
	}

	slog.Debug("signal rejected by preset layer",
		"symbol", sig.Symbol, "reason", lastReason)
	return Decision{Reason: lastReason, Label: sig.Label}
}

// check applies one preset's gates; withFocus toggles the label-focus gate.
func (a *Admission) check(p *Preset, sig *model.TradeSignal, key string, now time.Time, withFocus bool) (string, bool) {
	if p.Cooldown > 0 {
		if last, ok := a.lastAdmitted[key]; ok && now.Sub(last) < p.Cooldown {
			return "cooldown_active", false
		}
	}
	if p.MaxOpenPositions > 0 && a.gateway.OpenPositions(sig.Symbol) >= p.MaxOpenPositions {
		return "max_open_positions", false
	}
	if p.SessionFilter {
		cur := session.Current(now)
		ok := false
		for _, s := range p.AllowedSessions {
			if s == cur {
				ok = true
				break
			}
		}
		if !ok {
			return "session_not_allowed", false
		}
	}
	if withFocus && len(p.LabelFocus) > 0 && !labelMatches(p.LabelFocus, sig.Label) {
		return "label_not_focused", false
	}
	return "", true
}

func labelMatches(focus []string, label string) bool {
	for _, f := range focus {
		if label == f || strings.HasPrefix(label, f) {
			return true
		}
	}
	return false
}
