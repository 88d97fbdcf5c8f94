package store

import (
	"context"
	"fmt"
	"os"

	"github.com/zeroinstall-go/zerostore/health"
)

// HealthChecker returns a health.Checker that fails if the store root is
// missing or not a directory — the minimal liveness signal debugapi
// exposes at /debug/health for an operator to alert on.
func (s *Store) HealthChecker() health.Checker {
	return health.CheckFunc(func(ctx context.Context) error {
		info, err := os.Stat(s.root)
		if err != nil {
			return fmt.Errorf("store root %s: %w", s.root, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("store root %s is not a directory", s.root)
		}
		return nil
	})
}
