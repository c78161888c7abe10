// Package reservation detects collisions between generated tag codes.
//
// kewtag.GenerateUniqueCode is probabilistic: two codes minted in the same
// millisecond share a timestamp and differ only in 32 bits of randomness.
// A Registry records every code handed out so a duplicate is caught before
// it is printed on a label.
//
// # Overview
//
// The package provides:
//   - Registry interface for code reservation
//   - MemoryRegistry for single-instance deployments
//   - RedisRegistry for deployments sharing one code space
//   - PostgresRegistry for deployments whose entity store is relational
//   - GenerateReserved, a bounded retry loop around a Generator
//
// # Basic Usage
//
//	reg := reservation.NewMemoryRegistry(0)
//	defer reg.Close()
//
//	code, err := reservation.GenerateReserved(ctx, kewtag.NewGenerator(), reg, "AST", 0)
//	if err != nil {
//	    return err
//	}
//
// # Distributed Usage with Redis
//
//	reg := reservation.NewRedisRegistry(rdb, 0).WithPrefix("plant-a:code:")
//
//	// SET NX makes the check-and-reserve atomic across instances
//	ok, err := reg.Reserve(ctx, code)
package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbaliyan/kewtag"
)

// DefaultAttempts is the number of codes GenerateReserved tries before giving up.
const DefaultAttempts = 3

// ErrCodeCollision indicates a generated code was already reserved.
//
// Example:
//
//	if errors.Is(err, reservation.ErrCodeCollision) {
//	    log.Warn("code space exhausted for prefix", "prefix", prefix)
//	}
var ErrCodeCollision = errors.New("code already reserved")

// Registry records issued codes.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Registry interface {
	// Reserve records code as issued.
	//
	// Returns:
	//   - (true, nil): code was free and is now reserved
	//   - (false, nil): code was already reserved
	//   - (false, error): the check failed
	Reserve(ctx context.Context, code string) (bool, error)

	// Release frees a reserved code. tagging.Service calls it when a create
	// fails and after the record carrying the code is deleted. Releasing an
	// unknown code is not an error.
	Release(ctx context.Context, code string) error

	// Exists reports whether code is currently reserved.
	Exists(ctx context.Context, code string) (bool, error)
}

// ExhaustedError is returned by GenerateReserved when every attempt collided.
type ExhaustedError struct {
	Prefix   string
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no free code for prefix %q after %d attempts", e.Prefix, e.Attempts)
}

func (e *ExhaustedError) Unwrap() error {
	return ErrCodeCollision
}

// IsExhausted checks if the error is an ExhaustedError.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}

// GenerateReserved generates codes with gen until one can be reserved in reg.
//
// Parameters:
//   - gen: code generator; nil uses a default kewtag.Generator
//   - reg: registry to reserve in
//   - prefix: code prefix; empty selects kewtag.DefaultCodePrefix
//   - attempts: maximum number of codes to try; <= 0 uses DefaultAttempts
//
// Registry errors are returned immediately. When every attempt collides
// the result is an *ExhaustedError wrapping ErrCodeCollision.
func GenerateReserved(ctx context.Context, gen *kewtag.Generator, reg Registry, prefix string, attempts int) (string, error) {
	if gen == nil {
		gen = kewtag.NewGenerator()
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code := gen.Generate(prefix)
		ok, err := reg.Reserve(ctx, code)
		if err != nil {
			return "", fmt.Errorf("reserve %s: %w", code, err)
		}
		if ok {
			return code, nil
		}
	}
	if prefix == "" {
		prefix = kewtag.DefaultCodePrefix
	}
	return "", &ExhaustedError{Prefix: prefix, Attempts: attempts}
}
