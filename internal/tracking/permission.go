package tracking

import "context"

// PermissionGate answers whether foreground location access is granted.
type PermissionGate interface {
	RequestForegroundPermission(ctx context.Context) (bool, error)
}

// StaticGate always answers with its own value.
type StaticGate bool

func (g StaticGate) RequestForegroundPermission(context.Context) (bool, error) {
	return bool(g), nil
}

type GateFunc func(ctx context.Context) (bool, error)

func (f GateFunc) RequestForegroundPermission(ctx context.Context) (bool, error) {
	return f(ctx)
}
