package quota

import (
	"errors"
	"time"
)

var (
	ErrStorageUnavailable = errors.New("quota: storage unavailable")
	ErrQuotaNotFound      = errors.New("quota: not found")
)

// Key — составной ключ квоты: маршрут внутри анкеты.
type Key struct {
	RouteID         string `json:"routeId"`
	QuestionnaireID string `json:"questionnaireId"`
}

func (k Key) String() string { return k.QuestionnaireID + "/" + k.RouteID }

type Metadata struct {
	TotalSubmissions int `json:"totalSubmissions"`
	// UniqueUsersApprox растёт на каждое засчитанное прохождение,
	// реальных уникальных пользователей не отражает.
	UniqueUsersApprox int `json:"uniqueUsersApprox"`
}

type RouteQuota struct {
	Key
	Category     string    `json:"category"`
	Limit        int       `json:"limit"`
	CurrentCount int       `json:"currentCount"`
	Active       bool      `json:"active"`
	LastUpdated  time.Time `json:"lastUpdated"`
	Metadata     Metadata  `json:"metadata"`
}

func (q RouteQuota) Full() bool { return q.CurrentCount >= q.Limit }

// Remaining никогда не бывает отрицательным, даже после ручной правки лимита.
func (q RouteQuota) Remaining() int {
	if q.CurrentCount >= q.Limit {
		return 0
	}
	return q.Limit - q.CurrentCount
}

type AdmitResult struct {
	Admitted bool
	// Repeated: слот под этот admissionID уже был занят раньше, счётчик не менялся.
	Repeated bool
	Quota    RouteQuota
}

// Patch — частичное админское изменение; nil-поля не трогаем.
type Patch struct {
	Limit        *int
	CurrentCount *int
	Active       *bool
}

func (p Patch) Empty() bool {
	return p.Limit == nil && p.CurrentCount == nil && p.Active == nil
}

type Filter struct {
	QuestionnaireID string
	Category        string
	Active          *bool
}

func (f Filter) Match(q RouteQuota) bool {
	if f.QuestionnaireID != "" && q.QuestionnaireID != f.QuestionnaireID {
		return false
	}
	if f.Category != "" && q.Category != f.Category {
		return false
	}
	if f.Active != nil && q.Active != *f.Active {
		return false
	}
	return true
}
