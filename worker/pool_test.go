package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediagrab/config"
	"mediagrab/models"
	"mediagrab/queue"
	"mediagrab/services"
)

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()

	path := filepath.Join(dir, "fake-yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("writing fake yt-dlp: %v", err)
	}
	return path
}

// The fake tool receives "--newline --output <template> ..." and
// derives the artifact path the way yt-dlp would, by substituting the
// extension into the template.
const successScript = `out="$3"
base="${out%.%(ext)s}"
echo "[download] Destination: $base.mp3"
echo "[download]  10.0% of ~3.00MiB at 1.00MiB/s"
echo "[download]  55.5% of ~3.00MiB at 1.00MiB/s"
printf 'audio-bytes' > "$base.mp3"
`

func newPoolFixture(t *testing.T, script string) (*Pool, *services.JobRegistry, *config.Config) {
	t.Helper()

	cfg := &config.Config{
		OutputDir: t.TempDir(),
		YtDlpPath: script,
	}
	registry := services.NewJobRegistry(time.Hour)
	return NewPool(cfg, queue.NewMemoryQueue(4), registry), registry, cfg
}

func TestRunJob_Success(t *testing.T) {
	t.Parallel()

	script := writeScript(t, t.TempDir(), successScript)
	pool, registry, cfg := newPoolFixture(t, script)

	job := registry.Create("s1", "https://youtu.be/abc123", models.FormatMP3, models.TypeVideo)
	pool.runJob(0, job)

	got, ok := registry.Get(job.ID)
	if !ok {
		t.Fatal("job disappeared")
	}
	if got.Status != models.JobStatusCompleted {
		t.Fatalf("expected completed, got %s (error %q)", got.Status, got.Error)
	}
	if got.Error != "" {
		t.Fatalf("unexpected error: %q", got.Error)
	}
	if got.Progress != 100 {
		t.Fatalf("expected progress 100, got %v", got.Progress)
	}

	want := filepath.Join(cfg.OutputDir, job.ID+".mp3")
	if got.FilePath != want {
		t.Fatalf("expected artifact %s, got %s", want, got.FilePath)
	}
	if _, err := os.Stat(got.FilePath); err != nil {
		t.Fatalf("artifact missing from disk: %v", err)
	}
}

func TestRunJob_ProgressMarkersAreParsed(t *testing.T) {
	t.Parallel()

	// Emits markers but produces no artifact, so the job fails and the
	// last observed percentage stays visible.
	script := writeScript(t, t.TempDir(), `echo "[download]  10.0%"
echo "not a progress line"
echo "[download]  55.5% of ~3.00MiB"
`)
	pool, registry, _ := newPoolFixture(t, script)

	job := registry.Create("s1", "https://youtu.be/abc123", models.FormatMP3, models.TypeVideo)
	pool.runJob(0, job)

	got, _ := registry.Get(job.ID)
	if got.Progress != 55.5 {
		t.Fatalf("expected last observed progress 55.5, got %v", got.Progress)
	}
	if got.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Error != "downloaded file not found" {
		t.Fatalf("expected artifact-missing error, got %q", got.Error)
	}
}

func TestRunJob_NonzeroExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, t.TempDir(), `echo "ERROR: unable to download" >&2
exit 1
`)
	pool, registry, _ := newPoolFixture(t, script)

	job := registry.Create("s1", "https://youtu.be/abc123", models.FormatMP4, models.TypeVideo)
	pool.runJob(0, job)

	got, _ := registry.Get(job.ID)
	if got.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Error != "yt-dlp exited with code 1" {
		t.Fatalf("unexpected error message: %q", got.Error)
	}
	if got.FilePath != "" {
		t.Fatalf("failed job must not record an artifact, got %q", got.FilePath)
	}
}

func TestRunJob_SpawnFailureDoesNotStallSlot(t *testing.T) {
	t.Parallel()

	pool, registry, _ := newPoolFixture(t, filepath.Join(t.TempDir(), "missing-binary"))

	job := registry.Create("s1", "https://youtu.be/abc123", models.FormatMP3, models.TypeVideo)
	pool.runJob(0, job)

	got, _ := registry.Get(job.ID)
	if got.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if !strings.Contains(got.Error, "starting") {
		t.Fatalf("expected a spawn error, got %q", got.Error)
	}
}

func TestStartWorker_DrainsQueueInOrder(t *testing.T) {
	t.Parallel()

	script := writeScript(t, t.TempDir(), successScript)
	pool, registry, _ := newPoolFixture(t, script)

	first := registry.Create("s1", "https://youtu.be/one11111111", models.FormatMP3, models.TypeVideo)
	second := registry.Create("s1", "https://youtu.be/two22222222", models.FormatMP3, models.TypeVideo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A job id whose record is gone must be skipped, not dispatched.
	for _, id := range []string{"reaped-job-id", first.ID, second.ID} {
		if err := pool.queue.Enqueue(ctx, id); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	go pool.StartWorker(ctx, 0)

	deadline := time.After(5 * time.Second)
	for {
		a, _ := registry.Get(first.ID)
		b, _ := registry.Get(second.ID)
		if a.Status.IsTerminal() && b.Status.IsTerminal() {
			if a.Status != models.JobStatusCompleted || b.Status != models.JobStatusCompleted {
				t.Fatalf("expected both completed, got %s and %s", a.Status, b.Status)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("jobs did not finish: %s=%s %s=%s", first.ID, a.Status, second.ID, b.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	base := models.DownloadJob{ID: "job-1", URL: "https://youtu.be/abc"}

	t.Run("mp3 single video", func(t *testing.T) {
		job := base
		job.Format = models.FormatMP3
		job.Type = models.TypeVideo

		args := BuildArgs(job, "/data")
		want := []string{
			"--newline",
			"--output", filepath.Join("/data", "job-1.%(ext)s"),
			"--no-playlist",
			"--extract-audio", "--audio-format", "mp3",
			"https://youtu.be/abc",
		}
		assertArgs(t, args, want)
	})

	t.Run("mp4 playlist", func(t *testing.T) {
		job := base
		job.Format = models.FormatMP4
		job.Type = models.TypePlaylist

		args := BuildArgs(job, "/data")
		want := []string{
			"--newline",
			"--output", filepath.Join("/data", "job-1.%(ext)s"),
			"--format", "best[ext=mp4]",
			"https://youtu.be/abc",
		}
		assertArgs(t, args, want)
	})
}

func assertArgs(t *testing.T, got, want []string) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("expected %d args, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arg %d: expected %q, got %q (full: %v)", i, want[i], got[i], got)
		}
	}
}

func TestFindArtifact(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{
		"job-1.mp4",
		"job-1.mp4.part", // in-flight temp file, never an artifact
		"job-1.mp4.ytdl",
		"job-2.mp3",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	path, err := FindArtifact(dir, "job-1")
	if err != nil {
		t.Fatalf("FindArtifact: %v", err)
	}
	if path != filepath.Join(dir, "job-1.mp4") {
		t.Fatalf("unexpected artifact: %s", path)
	}

	if _, err := FindArtifact(dir, "job-3"); err == nil {
		t.Fatal("expected an error when no artifact exists")
	}
}
