package quota

import "context"

// Store — долговременное хранилище счётчиков квот.
//
// TryAdmitAndIncrement — единственная операция, которой разрешено решать,
// получает ли прохождение слот: проверка active && current < limit и
// инкремент выполняются одной атомарной записью. Непустой admissionID
// делает вызов идемпотентным: повтор с тем же id возвращает Admitted и
// Repeated без второго инкремента. Пустой id не запоминается.
type Store interface {
	GetOrCreate(ctx context.Context, key Key, category string, defaultLimit int) (RouteQuota, error)
	Get(ctx context.Context, key Key) (RouteQuota, error)
	TryAdmitAndIncrement(ctx context.Context, key Key, admissionID string) (AdmitResult, error)
	IncrementMetadata(ctx context.Context, key Key) error
	AdminSet(ctx context.Context, key Key, patch Patch) (RouteQuota, error)
	Delete(ctx context.Context, key Key) error
	ListAll(ctx context.Context, f Filter) ([]RouteQuota, error)
}
