package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/dbackup/internal/models"
	"github.com/opsdeck/dbackup/internal/services/dump"
)

// Mock implementations.
type mockDumpService struct {
	dumpFunc func(ctx context.Context, target models.Target, outputDir string) (*models.DumpResult, error)
	calls    []string
}

func (m *mockDumpService) Dump(ctx context.Context, target models.Target, outputDir string) (*models.DumpResult, error) {
	m.calls = append(m.calls, target.Name)
	if m.dumpFunc != nil {
		return m.dumpFunc(ctx, target, outputDir)
	}
	// Default behavior: write a small dump file and report success
	path := filepath.Join(outputDir, target.Name+"_20260825T031500Z.sql")
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte("-- dump\n"), 0o600); err != nil {
		return nil, err
	}
	return &models.DumpResult{
		Target:     target.Name,
		Succeeded:  true,
		OutputPath: path,
		SizeBytes:  8,
	}, nil
}

type mockCompressService struct {
	compressFunc func(sourcePath, destPath string) error
}

func (m *mockCompressService) Compress(sourcePath, destPath string) error {
	if m.compressFunc != nil {
		return m.compressFunc(sourcePath, destPath)
	}
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0o600)
}

type mockPruneService struct {
	pruneFunc func(ctx context.Context, dir string, targets []string, retentionDays int) (int, error)
	called    bool
}

func (m *mockPruneService) Prune(ctx context.Context, dir string, targets []string, retentionDays int) (int, error) {
	m.called = true
	if m.pruneFunc != nil {
		return m.pruneFunc(ctx, dir, targets, retentionDays)
	}
	return 0, nil
}

type mockUploadService struct {
	uploadFunc func(ctx context.Context, localPath, key string) error
	keys       []string
}

func (m *mockUploadService) Upload(ctx context.Context, localPath, key string) error {
	m.keys = append(m.keys, key)
	if m.uploadFunc != nil {
		return m.uploadFunc(ctx, localPath, key)
	}
	return nil
}

type mockTelegramService struct {
	sendFunc func(ctx context.Context, summary *models.RunSummary) error
	sent     []*models.RunSummary
}

func (m *mockTelegramService) SendSummary(ctx context.Context, summary *models.RunSummary) error {
	m.sent = append(m.sent, summary)
	if m.sendFunc != nil {
		return m.sendFunc(ctx, summary)
	}
	return nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testTargets() []models.Target {
	return []models.Target{
		{Name: "pg-main", Type: "postgresql", Socket: "/var/run/postgresql", User: "backup", Password: "pw"},
		{Name: "shop", Type: "maria", Socket: "/run/mysqld/mysqld.sock", User: "root", Password: "pw"},
	}
}

func newTestRunner(t *testing.T, settings models.Settings, dumpSvc *mockDumpService) (*Impl, *mockPruneService) {
	t.Helper()

	pruneSvc := &mockPruneService{}
	runner := NewWithServices(
		testLogger(),
		settings,
		dumpSvc,
		&mockCompressService{},
		pruneSvc,
		nil,
		nil,
	)
	return runner, pruneSvc
}

func TestRun_AllSucceed(t *testing.T) {
	settings := models.Settings{OutputDir: t.TempDir()}
	dumpSvc := &mockDumpService{}
	runner, _ := newTestRunner(t, settings, dumpSvc)

	summary, err := runner.Run(context.Background(), testTargets())

	require.NoError(t, err)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, 2, summary.Succeeded())
	assert.Equal(t, 0, summary.Failed())
	assert.True(t, summary.Ok())
	assert.Equal(t, []string{"pg-main", "shop"}, dumpSvc.calls)
}

func TestRun_FailureIsolation(t *testing.T) {
	settings := models.Settings{OutputDir: t.TempDir()}

	dumpSvc := &mockDumpService{
		dumpFunc: func(ctx context.Context, target models.Target, outputDir string) (*models.DumpResult, error) {
			if target.Name == "pg-main" {
				return &models.DumpResult{
					Target: target.Name,
					Err:    errors.New("pg_dumpall exited with status 2"),
				}, nil
			}
			return &models.DumpResult{Target: target.Name, Succeeded: true, OutputPath: "x", SizeBytes: 1}, nil
		},
	}
	runner, _ := newTestRunner(t, settings, dumpSvc)

	summary, err := runner.Run(context.Background(), testTargets())

	require.NoError(t, err)

	// The first target's failure must not keep the second from running.
	assert.Equal(t, []string{"pg-main", "shop"}, dumpSvc.calls)
	require.Len(t, summary.Results, 2)
	assert.False(t, summary.Results[0].Succeeded)
	assert.True(t, summary.Results[1].Succeeded)
	assert.Equal(t, 1, summary.Failed())
	assert.False(t, summary.Ok())
}

func TestRun_InvalidTargetIsolated(t *testing.T) {
	settings := models.Settings{OutputDir: t.TempDir()}

	targets := testTargets()
	targets[0].Password = ""

	dumpSvc := &mockDumpService{}
	runner, _ := newTestRunner(t, settings, dumpSvc)

	summary, err := runner.Run(context.Background(), targets)

	require.NoError(t, err)
	require.Len(t, summary.Results, 2)

	// The invalid target never reaches the dump service.
	assert.Equal(t, []string{"shop"}, dumpSvc.calls)
	assert.False(t, summary.Results[0].Succeeded)
	assert.Contains(t, summary.Results[0].Err.Error(), "password is required")
	assert.True(t, summary.Results[1].Succeeded)
}

func TestRun_UnknownTypeIsolated(t *testing.T) {
	// Wire the real dump service with a fake executor so the unknown-type
	// path is exercised end to end.
	tmpDir := t.TempDir()
	outputDir := filepath.Join(tmpDir, "output")

	socketDir := filepath.Join(tmpDir, "postgresql")
	require.NoError(t, os.MkdirAll(socketDir, 0o750))

	targets := []models.Target{
		{Name: "pg-main", Type: "postgresql", Socket: socketDir, User: "backup", Password: "pw"},
		{Name: "bad1", Type: "oracle", Socket: socketDir, User: "u", Password: "pw"},
	}

	executor := &fakeExecutor{output: "-- PostgreSQL database cluster dump\n"}
	runner := NewWithServices(
		testLogger(),
		models.Settings{OutputDir: outputDir},
		dump.NewWithExecutor(testLogger(), executor),
		&mockCompressService{},
		&mockPruneService{},
		nil,
		nil,
	)

	summary, err := runner.Run(context.Background(), targets)

	require.NoError(t, err)
	require.Len(t, summary.Results, 2)

	assert.True(t, summary.Results[0].Succeeded)
	assert.Greater(t, summary.Results[0].SizeBytes, int64(0))

	assert.False(t, summary.Results[1].Succeeded)
	assert.True(t, errors.Is(summary.Results[1].Err, dump.ErrUnknownEngine))

	assert.False(t, summary.Ok())
}

type fakeExecutor struct {
	output string
}

func (f *fakeExecutor) Run(ctx context.Context, inv dump.Invocation, stdout io.Writer) (int, string, error) {
	_, err := stdout.Write([]byte(f.output))
	return 0, "", err
}

func TestRun_Compress(t *testing.T) {
	outputDir := t.TempDir()
	settings := models.Settings{OutputDir: outputDir, Compress: true}

	dumpSvc := &mockDumpService{}
	runner, _ := newTestRunner(t, settings, dumpSvc)

	summary, err := runner.Run(context.Background(), testTargets()[:1])

	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	require.True(t, summary.Results[0].Succeeded)

	// The raw dump is replaced by the compressed one.
	assert.True(t, filepath.Ext(summary.Results[0].OutputPath) == ".gz")
	_, statErr := os.Stat(summary.Results[0].OutputPath)
	assert.NoError(t, statErr)

	rawPath := summary.Results[0].OutputPath[:len(summary.Results[0].OutputPath)-len(".gz")]
	_, statErr = os.Stat(rawPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_CompressFailureFailsTarget(t *testing.T) {
	settings := models.Settings{OutputDir: t.TempDir(), Compress: true}

	dumpSvc := &mockDumpService{}
	pruneSvc := &mockPruneService{}
	runner := NewWithServices(
		testLogger(),
		settings,
		dumpSvc,
		&mockCompressService{
			compressFunc: func(sourcePath, destPath string) error {
				return errors.New("disk full")
			},
		},
		pruneSvc,
		nil,
		nil,
	)

	summary, err := runner.Run(context.Background(), testTargets()[:1])

	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.False(t, summary.Results[0].Succeeded)
	assert.Contains(t, summary.Results[0].Err.Error(), "disk full")
}

func TestRun_Upload(t *testing.T) {
	settings := models.Settings{
		OutputDir: t.TempDir(),
		S3:        &models.S3Settings{Bucket: "db-dumps", Prefix: "nightly", Region: "eu-central-1"},
	}

	uploadSvc := &mockUploadService{}
	runner := NewWithServices(
		testLogger(),
		settings,
		&mockDumpService{},
		&mockCompressService{},
		&mockPruneService{},
		uploadSvc,
		nil,
	)

	summary, err := runner.Run(context.Background(), testTargets())

	require.NoError(t, err)
	assert.True(t, summary.Ok())
	require.Len(t, uploadSvc.keys, 2)
	assert.Equal(t, "nightly/pg-main/pg-main_20260825T031500Z.sql", uploadSvc.keys[0])
	assert.Equal(t, "nightly/shop/shop_20260825T031500Z.sql", uploadSvc.keys[1])
}

func TestRun_UploadWithoutS3Settings(t *testing.T) {
	// NewWithServices lets tests wire an uploader on its own; the batch then
	// runs with an empty key prefix instead of dereferencing absent settings.
	uploadSvc := &mockUploadService{}
	runner := NewWithServices(
		testLogger(),
		models.Settings{OutputDir: t.TempDir()},
		&mockDumpService{},
		&mockCompressService{},
		&mockPruneService{},
		uploadSvc,
		nil,
	)

	summary, err := runner.Run(context.Background(), testTargets())

	require.NoError(t, err)
	assert.True(t, summary.Ok())
	require.Len(t, uploadSvc.keys, 2)
	assert.Equal(t, "pg-main/pg-main_20260825T031500Z.sql", uploadSvc.keys[0])
	assert.Equal(t, "shop/shop_20260825T031500Z.sql", uploadSvc.keys[1])
}

func TestRun_UploadFailureCounts(t *testing.T) {
	settings := models.Settings{
		OutputDir: t.TempDir(),
		S3:        &models.S3Settings{Bucket: "db-dumps", Region: "eu-central-1"},
	}

	uploadSvc := &mockUploadService{
		uploadFunc: func(ctx context.Context, localPath, key string) error {
			return errors.New("access denied")
		},
	}
	runner := NewWithServices(
		testLogger(),
		settings,
		&mockDumpService{},
		&mockCompressService{},
		&mockPruneService{},
		uploadSvc,
		nil,
	)

	summary, err := runner.Run(context.Background(), testTargets())

	require.NoError(t, err)

	// The dumps themselves still count as succeeded.
	assert.Equal(t, 2, summary.Succeeded())
	assert.Equal(t, 2, summary.UploadsFailed)
	assert.False(t, summary.Ok())
}

func TestRun_PruneOnlyWhenConfigured(t *testing.T) {
	dumpSvc := &mockDumpService{}

	runner, pruneSvc := newTestRunner(t, models.Settings{OutputDir: t.TempDir()}, dumpSvc)
	_, err := runner.Run(context.Background(), testTargets())
	require.NoError(t, err)
	assert.False(t, pruneSvc.called)

	runner, pruneSvc = newTestRunner(t, models.Settings{OutputDir: t.TempDir(), RetentionDays: 7}, dumpSvc)
	_, err = runner.Run(context.Background(), testTargets())
	require.NoError(t, err)
	assert.True(t, pruneSvc.called)
}

func TestRun_PruneResultInSummary(t *testing.T) {
	settings := models.Settings{OutputDir: t.TempDir(), RetentionDays: 7}

	pruneSvc := &mockPruneService{
		pruneFunc: func(ctx context.Context, dir string, targets []string, retentionDays int) (int, error) {
			assert.Equal(t, settings.OutputDir, dir)
			assert.Equal(t, []string{"pg-main", "shop"}, targets)
			assert.Equal(t, 7, retentionDays)
			return 3, nil
		},
	}
	runner := NewWithServices(
		testLogger(),
		settings,
		&mockDumpService{},
		&mockCompressService{},
		pruneSvc,
		nil,
		nil,
	)

	summary, err := runner.Run(context.Background(), testTargets())

	require.NoError(t, err)
	assert.Equal(t, 3, summary.PruneRemoved)
}

func TestRun_PruneFailureDoesNotFailBatch(t *testing.T) {
	settings := models.Settings{OutputDir: t.TempDir(), RetentionDays: 7}

	pruneSvc := &mockPruneService{
		pruneFunc: func(ctx context.Context, dir string, targets []string, retentionDays int) (int, error) {
			return 0, errors.New("read error")
		},
	}
	runner := NewWithServices(
		testLogger(),
		settings,
		&mockDumpService{},
		&mockCompressService{},
		pruneSvc,
		nil,
		nil,
	)

	summary, err := runner.Run(context.Background(), testTargets())

	require.NoError(t, err)
	assert.True(t, summary.Ok())
}

func TestRun_Notification(t *testing.T) {
	telegramSvc := &mockTelegramService{}
	runner := NewWithServices(
		testLogger(),
		models.Settings{OutputDir: t.TempDir()},
		&mockDumpService{},
		&mockCompressService{},
		&mockPruneService{},
		nil,
		telegramSvc,
	)

	summary, err := runner.Run(context.Background(), testTargets())

	require.NoError(t, err)
	require.Len(t, telegramSvc.sent, 1)
	assert.Equal(t, summary, telegramSvc.sent[0])
	assert.Equal(t, 2, telegramSvc.sent[0].Succeeded())
}

func TestRun_NotificationFailureDoesNotFailBatch(t *testing.T) {
	telegramSvc := &mockTelegramService{
		sendFunc: func(ctx context.Context, summary *models.RunSummary) error {
			return errors.New("telegram unreachable")
		},
	}
	runner := NewWithServices(
		testLogger(),
		models.Settings{OutputDir: t.TempDir()},
		&mockDumpService{},
		&mockCompressService{},
		&mockPruneService{},
		nil,
		telegramSvc,
	)

	summary, err := runner.Run(context.Background(), testTargets())

	require.NoError(t, err)
	assert.True(t, summary.Ok())
}

func TestRun_NoTargets(t *testing.T) {
	runner, _ := newTestRunner(t, models.Settings{OutputDir: t.TempDir()}, &mockDumpService{})

	summary, err := runner.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, summary.Results)
	assert.True(t, summary.Ok())
}

func TestRun_HostAndTiming(t *testing.T) {
	runner, _ := newTestRunner(t, models.Settings{OutputDir: t.TempDir()}, &mockDumpService{})

	summary, err := runner.Run(context.Background(), testTargets())

	require.NoError(t, err)
	assert.NotEmpty(t, summary.Host)
	assert.False(t, summary.StartTime.IsZero())
	assert.GreaterOrEqual(t, summary.Duration, time.Duration(0))
}
