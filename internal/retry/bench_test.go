package retry

import (
	"context"
	"testing"
	"time"

	ftperrors "goftpd/internal/errors"
)

// BenchmarkDo_FirstListenSucceeds is the reconnect loop when the gateway
// answers straight away.
func BenchmarkDo_FirstListenSucceeds(b *testing.B) {
	bo := DefaultBackoff()
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		bo.Do(ctx, func(int) error { return nil }) //nolint:errcheck
	}
}

// BenchmarkDo_CredentialsRejected is the early exit on a permanent
// failure.
func BenchmarkDo_CredentialsRejected(b *testing.B) {
	bo := DefaultBackoff()
	ctx := context.Background()
	rejected := ftperrors.WrapSSH("auth", "gw.example.com", 22, ftperrors.ErrAuthFailed)
	for i := 0; i < b.N; i++ {
		bo.Do(ctx, func(int) error { return Permanent(rejected) }) //nolint:errcheck
	}
}

func BenchmarkDelay(b *testing.B) {
	bo := DefaultBackoff()
	for i := 0; i < b.N; i++ {
		_ = bo.Delay(i%12 + 1)
	}
}

func BenchmarkJitter(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = addJitter(time.Duration(i%1000+1) * time.Millisecond)
	}
}
