package submissions

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("submissions: not found")
	ErrAlreadyFinalized   = errors.New("submissions: already finalized")
	ErrStorageUnavailable = errors.New("submissions: storage unavailable")
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusAccepted     Status = "accepted"
	StatusRejected     Status = "rejected"
	StatusUnreconciled Status = "unreconciled" // ждёт ручной сверки
)

// Response — одна попытка сдать отчёт по маршруту.
type Response struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	QuestionnaireID string          `json:"questionnaireId"`
	RouteID         string          `json:"routeId"`
	Payload         json.RawMessage `json:"payload"`
	Status          Status          `json:"status"`
	Reason          string          `json:"reason,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// RouteHistory: засчитанные прохождения пользователя по одному маршруту.
type RouteHistory struct {
	Count           int
	LastSubmittedAt time.Time
}

// History — история пользователя в рамках анкеты, по routeID.
type History map[string]RouteHistory

func (h History) Count(routeID string) int {
	if h == nil {
		return 0
	}
	return h[routeID].Count
}
