package health

import (
	"context"
	"errors"
	"testing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestCheck(t *testing.T) {
	cases := []struct {
		name string
		svc  *Service
		want Status
	}{
		{name: "memory", svc: NewService(nil), want: Status{OK: true, Database: "memory"}},
		{name: "healthy", svc: NewService(pingFunc(func(context.Context) error { return nil })), want: Status{OK: true, Database: "ok"}},
		{name: "down", svc: NewService(pingFunc(func(context.Context) error { return errors.New("refused") })), want: Status{OK: false, Database: "unreachable"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.svc.Check(context.Background()); got != tc.want {
				t.Fatalf("Check() = %+v, want %+v", got, tc.want)
			}
		})
	}
}
