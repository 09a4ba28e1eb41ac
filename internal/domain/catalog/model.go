package catalog

import (
	"errors"

	"github.com/Spok95/route-survey/internal/domain/rules"
)

var (
	ErrUnknownQuestionnaire = errors.New("catalog: unknown questionnaire")
	ErrUnknownRoute         = errors.New("catalog: unknown route")
)

type Route struct {
	ID       string `mapstructure:"id" json:"id"`
	Name     string `mapstructure:"name" json:"name"`
	Category string `mapstructure:"category" json:"category"`
}

type Questionnaire struct {
	ID     string       `mapstructure:"id" json:"id"`
	Title  string       `mapstructure:"title" json:"title"`
	Routes []Route      `mapstructure:"routes" json:"routes"`
	Rules  []rules.Rule `mapstructure:"rules" json:"rules"`
}

func (q Questionnaire) Route(id string) (Route, bool) {
	for _, r := range q.Routes {
		if r.ID == id {
			return r, true
		}
	}
	return Route{}, false
}

// ActiveRules возвращает правила с isActive=true.
func (q Questionnaire) ActiveRules() []rules.Rule { return rules.Active(q.Rules) }
