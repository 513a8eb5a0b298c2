package app

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkops/inkwell/internal/config"
	"github.com/inkops/inkwell/internal/testutil"
)

func TestSetup_NilConfig(t *testing.T) {
	t.Parallel()

	_, err := Setup(context.Background(), nil, testutil.DiscardLogger())
	if !errors.Is(err, config.ErrConfigNil) {
		t.Errorf("Setup(nil) error = %v, want ErrConfigNil", err)
	}
}

func TestApp_Close_PartialInit(t *testing.T) {
	t.Parallel()

	// Close must be safe on an App that never finished Setup.
	a := &App{Logger: testutil.DiscardLogger()}
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestApplyPoolDefaults(t *testing.T) {
	t.Parallel()

	poolCfg, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/inkwell")
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	applyPoolDefaults(poolCfg)

	if poolCfg.MaxConns != 10 || poolCfg.MinConns != 2 {
		t.Errorf("conns = (%d, %d), want (10, 2)", poolCfg.MaxConns, poolCfg.MinConns)
	}
	if poolCfg.MaxConnLifetime <= 0 || poolCfg.HealthCheckPeriod <= 0 {
		t.Error("lifetime settings not applied")
	}
}
