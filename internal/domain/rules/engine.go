package rules

// Precedence задаёт полный порядок исходов: block > hide > warn > allow.
func Precedence(o Outcome) int {
	switch o {
	case OutcomeBlock:
		return 3
	case OutcomeHide:
		return 2
	case OutcomeWarn:
		return 1
	default:
		return 0
	}
}

// MostRestrictive возвращает более строгое решение; при равенстве — первое.
func MostRestrictive(a, b Decision) Decision {
	if Precedence(b.Outcome) > Precedence(a.Outcome) {
		return b
	}
	return a
}

// Fires сообщает, срабатывает ли правило для кандидата.
func (r Rule) Fires(h History, c Candidate) bool {
	if !r.IsActive {
		return false
	}
	switch r.Type {
	case TypeSubmissionLimit:
		limit := r.Config.MaxSubmissionsPerRoute
		if limit <= 0 {
			return false
		}
		count := 0
		if h != nil {
			count = h.Count(c.RouteID)
		}
		return count >= limit
	case TypeQuotaLimit:
		return c.QuotaFull
	default:
		return false
	}
}

func (r Rule) decision() Decision {
	out, ok := enforcementOutcome[r.Enforcement]
	if !ok {
		return Decision{Outcome: OutcomeAllow}
	}
	msg := r.ErrorMessage
	if out == OutcomeWarn {
		msg = r.WarningMessage
	}
	if msg == "" {
		msg = defaultMessage(r.Type, out)
	}
	return Decision{Outcome: out, Message: msg, RuleID: r.ID}
}

func defaultMessage(t Type, o Outcome) string {
	switch {
	case t == TypeQuotaLimit && o == OutcomeWarn:
		return "Маршрут почти недоступен: лимит прохождений исчерпан"
	case t == TypeQuotaLimit:
		return "Лимит прохождений маршрута исчерпан"
	case o == OutcomeWarn:
		return "Вы уже проходили этот маршрут"
	default:
		return "Вы достигли лимита прохождений этого маршрута"
	}
}

// Evaluate — чистая функция: прогоняет активные правила по кандидату и
// сводит сработавшие к самому строгому решению.
func Evaluate(h History, c Candidate, rs []Rule) Decision {
	result := Decision{Outcome: OutcomeAllow}
	for _, r := range rs {
		if !r.Fires(h, c) {
			continue
		}
		result = MostRestrictive(result, r.decision())
	}
	return result
}

func Active(rs []Rule) []Rule {
	out := make([]Rule, 0, len(rs))
	for _, r := range rs {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out
}
