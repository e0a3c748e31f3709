package alerting

import (
	"fmt"

	"github.com/kilianp07/sitepower/core/model"
)

// Violation is a rule that currently holds for a subject.
type Violation struct {
	Subject string
	Type    model.AlertType
	Message string
}

// Key returns the lifecycle key of the violation.
func (v Violation) Key() model.AlertKey { return model.AlertKey{Subject: v.Subject, Type: v.Type} }

// SiteRule evaluates a site-level condition.
type SiteRule func(site model.Site) (Violation, bool)

// ConnectorRule evaluates a connector-level condition.
type ConnectorRule func(site model.Site, c model.ConnectorState) (Violation, bool)

// Rules is the rule set applied on every pass.
type Rules struct {
	Site      []SiteRule
	Connector []ConnectorRule
}

// DefaultRules returns the four built-in rules.
func DefaultRules() Rules {
	return Rules{
		Site:      []SiteRule{PowerExceed, DemandExceed},
		Connector: []ConnectorRule{ChargerError, ChargerPowerExceed},
	}
}

// PowerExceed holds when the site draws more than its grid limit.
func PowerExceed(s model.Site) (Violation, bool) {
	if s.CurrentPower <= s.TotalPowerLimit {
		return Violation{}, false
	}
	return Violation{
		Subject: s.SiteNo,
		Type:    model.AlertPowerExceed,
		Message: fmt.Sprintf("site power over limit: %.2fkW > %.2fkW", s.CurrentPower, s.TotalPowerLimit),
	}, true
}

// DemandExceed holds when the site draws more than its demand target.
func DemandExceed(s model.Site) (Violation, bool) {
	if s.CurrentPower <= s.Demand {
		return Violation{}, false
	}
	return Violation{
		Subject: s.SiteNo,
		Type:    model.AlertDemandExceed,
		Message: fmt.Sprintf("site power over demand: %.2fkW > %.2fkW", s.CurrentPower, s.Demand),
	}, true
}

// ChargerError holds while a connector reports ERROR.
func ChargerError(_ model.Site, c model.ConnectorState) (Violation, bool) {
	if c.Status != model.StatusError {
		return Violation{}, false
	}
	return Violation{
		Subject: c.ChargerSN,
		Type:    model.AlertChargerError,
		Message: fmt.Sprintf("charger fault: %s", c.ChargerSN),
	}, true
}

// ChargerPowerExceed holds when a connector draws more than its rating.
func ChargerPowerExceed(_ model.Site, c model.ConnectorState) (Violation, bool) {
	if c.CurrentPower <= c.RatedPower {
		return Violation{}, false
	}
	return Violation{
		Subject: c.ChargerSN,
		Type:    model.AlertChargerPowerExceed,
		Message: fmt.Sprintf("charger power over rating: %s %.2fkW > %.2fkW", c.ChargerSN, c.CurrentPower, c.RatedPower),
	}, true
}

// Evaluate returns every violation for the site, keyed by lifecycle key.
func (r Rules) Evaluate(site model.Site, cs []model.ConnectorState) map[model.AlertKey]Violation {
	out := make(map[model.AlertKey]Violation)
	for _, rule := range r.Site {
		if v, ok := rule(site); ok {
			out[v.Key()] = v
		}
	}
	for _, c := range cs {
		for _, rule := range r.Connector {
			if v, ok := rule(site, c); ok {
				out[v.Key()] = v
			}
		}
	}
	return out
}
