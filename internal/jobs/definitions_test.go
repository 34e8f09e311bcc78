package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleDefinitions = `
jobs:
  - name: daily_digest
    kind: http
    schedule: "0 9 * * *"
    max_execution_time: 10m
    description: send the daily digest
    config:
      url: http://localhost:9999/digest
      headers:
        Authorization: Bearer secret
  - name: smoke
    kind: delay
    max_execution_time: 30s
    config:
      duration: 10ms
  - name: lock_hygiene
    kind: cleanup_locks
    schedule: "*/15 * * * *"
    max_execution_time: 1m
`

type fakeCleaner struct {
	calls   int
	deleted int64
	err     error
}

func (f *fakeCleaner) CleanupExpired(context.Context) (int64, error) {
	f.calls++
	return f.deleted, f.err
}

func TestLoadDefinitions_BuildRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	if err := os.WriteFile(path, []byte(sampleDefinitions), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	defs, err := LoadDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}

	reg, err := BuildRegistry(defs, Deps{Cleaner: &fakeCleaner{}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	digest, err := reg.Get("daily_digest")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if digest.MaxExecutionTime != 10*time.Minute {
		t.Errorf("expected 10m, got %s", digest.MaxExecutionTime)
	}
	if digest.Schedule != "0 9 * * *" {
		t.Errorf("unexpected schedule %q", digest.Schedule)
	}
	if digest.Description != "send the daily digest" {
		t.Errorf("unexpected description %q", digest.Description)
	}

	smoke, _ := reg.Get("smoke")
	if smoke.Schedule != "" {
		t.Errorf("smoke must be manual-only, got schedule %q", smoke.Schedule)
	}
}

func TestParseDefinitions_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "jobs:\n  - name: a\n    kind: delay\n    ttl: 1m\n"},
		{"not yaml", "jobs: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinitions([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("expected ErrInvalidDefinition, got %v", err)
			}
		})
	}
}

func TestParseDefinitions_Empty(t *testing.T) {
	defs, err := ParseDefinitions(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != 0 {
		t.Errorf("expected no definitions, got %d", len(defs))
	}
}

func TestDefinitionBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		deps Deps
	}{
		{"missing name", Definition{Kind: KindDelay, MaxExecutionTime: "1m"}, Deps{}},
		{"unknown kind", Definition{Name: "a", Kind: "shell", MaxExecutionTime: "1m"}, Deps{}},
		{"missing ttl", Definition{Name: "a", Kind: KindDelay}, Deps{}},
		{"bad ttl", Definition{Name: "a", Kind: KindDelay, MaxExecutionTime: "soon"}, Deps{}},
		{"zero ttl", Definition{Name: "a", Kind: KindDelay, MaxExecutionTime: "0s"}, Deps{}},
		{"http without url", Definition{Name: "a", Kind: KindHTTP, MaxExecutionTime: "1m"}, Deps{}},
		{"cleanup without cleaner", Definition{Name: "a", Kind: KindCleanupLocks, MaxExecutionTime: "1m"}, Deps{}},
		{"negative delay", Definition{
			Name: "a", Kind: KindDelay, MaxExecutionTime: "1m",
			Config: map[string]any{"duration": "-1s"},
		}, Deps{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.def.Build(tt.deps)
			if !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("expected ErrInvalidDefinition, got %v", err)
			}
		})
	}
}

func TestDefinitionBuild_UnknownKindListsKinds(t *testing.T) {
	_, err := Definition{Name: "a", Kind: "shell", MaxExecutionTime: "1m"}.Build(Deps{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, kind := range Kinds() {
		if !strings.Contains(err.Error(), kind) {
			t.Errorf("error should list kind %s: %v", kind, err)
		}
	}
}

func TestBuildRegistry_Duplicate(t *testing.T) {
	defs := []Definition{
		{Name: "a", Kind: KindDelay, MaxExecutionTime: "1m"},
		{Name: "a", Kind: KindDelay, MaxExecutionTime: "2m"},
	}
	_, err := BuildRegistry(defs, Deps{})
	if !errors.Is(err, ErrInvalidDefinition) || !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("expected ErrInvalidDefinition wrapping ErrDuplicateJob, got %v", err)
	}
}

func TestCleanupKind(t *testing.T) {
	cleaner := &fakeCleaner{deleted: 3}
	job, err := Definition{Name: "hygiene", Kind: KindCleanupLocks, MaxExecutionTime: "1m"}.Build(Deps{Cleaner: cleaner})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if err := job.Run(context.Background(), Options{DryRun: true}); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if cleaner.calls != 0 {
		t.Errorf("dry run must not call cleaner, got %d calls", cleaner.calls)
	}

	if err := job.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if cleaner.calls != 1 {
		t.Errorf("expected 1 cleaner call, got %d", cleaner.calls)
	}

	cleaner.err = errors.New("db down")
	if err := job.Run(context.Background(), Options{}); err == nil {
		t.Error("expected cleaner error to propagate")
	}
}

func TestDelayKind(t *testing.T) {
	job, err := Definition{
		Name: "smoke", Kind: KindDelay, MaxExecutionTime: "1m",
		Config: map[string]any{"duration": "50ms"},
	}.Build(Deps{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	start := time.Now()
	if err := job.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("delay was too short: %v", elapsed)
	}

	// Параметр перекрывает config
	start = time.Now()
	if err := job.Run(context.Background(), Options{Params: map[string]any{"duration": "1ms"}}); err != nil {
		t.Fatalf("run with param: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("param override ignored: %v", elapsed)
	}
}

func TestDelayKind_Cancelled(t *testing.T) {
	job, err := Definition{
		Name: "smoke", Kind: KindDelay, MaxExecutionTime: "1m",
		Config: map[string]any{"duration": 10},
	}.Build(Deps{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = job.Run(ctx, Options{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}
