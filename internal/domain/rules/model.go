package rules

import (
	"fmt"
)

type Type string

const (
	TypeSubmissionLimit Type = "submission-limit"
	TypeQuotaLimit      Type = "quota-limit"
)

type Enforcement string

const (
	EnforceBlock Enforcement = "block"
	EnforceWarn  Enforcement = "warn"
	EnforceHide  Enforcement = "hide"
)

type Config struct {
	MaxSubmissionsPerRoute int `mapstructure:"maxSubmissionsPerRoute" json:"maxSubmissionsPerRoute"`
}

// Rule — правило анкеты. Правила приходят из описания анкеты и только читаются.
type Rule struct {
	ID             string      `mapstructure:"id" json:"id"`
	Type           Type        `mapstructure:"type" json:"type"`
	Enforcement    Enforcement `mapstructure:"enforcement" json:"enforcement"`
	Config         Config      `mapstructure:"config" json:"config"`
	ErrorMessage   string      `mapstructure:"errorMessage" json:"errorMessage"`
	WarningMessage string      `mapstructure:"warningMessage" json:"warningMessage"`
	IsActive       bool        `mapstructure:"isActive" json:"isActive"`
}

func (r Rule) Validate() error {
	switch r.Type {
	case TypeSubmissionLimit:
		if r.Config.MaxSubmissionsPerRoute < 1 {
			return fmt.Errorf("rule %q: maxSubmissionsPerRoute must be >= 1", r.ID)
		}
	case TypeQuotaLimit:
	default:
		return fmt.Errorf("rule %q: unknown type %q", r.ID, r.Type)
	}
	if _, ok := enforcementOutcome[r.Enforcement]; !ok {
		return fmt.Errorf("rule %q: unknown enforcement %q", r.ID, r.Enforcement)
	}
	return nil
}

// Outcome упорядочен по строгости: чем больше значение, тем строже.
type Outcome int

const (
	OutcomeAllow Outcome = iota
	OutcomeWarn
	OutcomeHide
	OutcomeBlock
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWarn:
		return "warn"
	case OutcomeHide:
		return "hide"
	case OutcomeBlock:
		return "block"
	default:
		return "allow"
	}
}

var enforcementOutcome = map[Enforcement]Outcome{
	EnforceWarn:  OutcomeWarn,
	EnforceHide:  OutcomeHide,
	EnforceBlock: OutcomeBlock,
}

// History — сколько раз пользователь уже засчитал маршрут.
type History interface {
	Count(routeID string) int
}

// Candidate — маршрут, для которого считаем решение. QuotaFull — превью
// заполненности, нужно только правилам типа quota-limit.
type Candidate struct {
	RouteID   string
	Category  string
	QuotaFull bool
}

type Decision struct {
	Outcome Outcome
	Message string
	RuleID  string
}
