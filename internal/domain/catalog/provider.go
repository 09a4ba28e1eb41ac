package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/viper"
)

// Provider отдаёт статическое описание анкеты: маршруты и правила.
type Provider interface {
	Questionnaire(ctx context.Context, id string) (Questionnaire, error)
	Questionnaires(ctx context.Context) ([]Questionnaire, error)
}

type Static struct {
	byID map[string]Questionnaire
}

var _ Provider = (*Static)(nil)

func NewStatic(qs ...Questionnaire) (*Static, error) {
	s := &Static{byID: make(map[string]Questionnaire, len(qs))}
	for _, q := range qs {
		if err := validate(q); err != nil {
			return nil, err
		}
		if _, dup := s.byID[q.ID]; dup {
			return nil, fmt.Errorf("questionnaire %q defined twice", q.ID)
		}
		s.byID[q.ID] = q
	}
	return s, nil
}

func validate(q Questionnaire) error {
	if q.ID == "" {
		return fmt.Errorf("questionnaire id is required")
	}
	seen := make(map[string]struct{}, len(q.Routes))
	for _, r := range q.Routes {
		if r.ID == "" {
			return fmt.Errorf("questionnaire %q: route id is required", q.ID)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("questionnaire %q: route %q defined twice", q.ID, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	for _, rule := range q.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("questionnaire %q: %w", q.ID, err)
		}
	}
	return nil
}

func (s *Static) Questionnaire(_ context.Context, id string) (Questionnaire, error) {
	q, ok := s.byID[id]
	if !ok {
		return Questionnaire{}, fmt.Errorf("%w: %s", ErrUnknownQuestionnaire, id)
	}
	return q, nil
}

func (s *Static) Questionnaires(_ context.Context) ([]Questionnaire, error) {
	out := make([]Questionnaire, 0, len(s.byID))
	for _, q := range s.byID {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadFile читает описание анкет из YAML/JSON файла.
func LoadFile(path string) (*Static, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read survey definitions: %w", err)
	}

	var doc struct {
		Questionnaires []Questionnaire `mapstructure:"questionnaires"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("decode survey definitions: %w", err)
	}
	return NewStatic(doc.Questionnaires...)
}
