package submissions

import "context"

// Store хранит ответы и счётчики прохождений.
//
// Accept в одной транзакции переводит ответ в accepted и увеличивает
// счётчик пользователя; счётчики никогда не уменьшаются.
type Store interface {
	CreatePending(ctx context.Context, r Response) (Response, error)
	Get(ctx context.Context, id string) (Response, error)
	Accept(ctx context.Context, id string) error
	Reject(ctx context.Context, id, reason string) error
	MarkUnreconciled(ctx context.Context, id, reason string) error
	History(ctx context.Context, userID, questionnaireID string) (History, error)
	ListByStatus(ctx context.Context, status Status, questionnaireID string) ([]Response, error)
}
