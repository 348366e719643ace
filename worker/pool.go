package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"mediagrab/config"
	"mediagrab/models"
	"mediagrab/queue"
	"mediagrab/services"
)

// yt-dlp writes lines like "[download]  42.7% of 10.00MiB at ...".
var progressRe = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%`)

// In-flight downloads leave temporary files next to the artifact.
var tempExtensions = []string{".part", ".ytdl"}

// Pool supervises external yt-dlp invocations, one per worker slot at
// a time. Each slot pulls job ids off the queue in FIFO order and
// commits the terminal state to the registry; nothing a single job
// does can stall the slot.
type Pool struct {
	cfg      *config.Config
	queue    queue.Queue
	registry *services.JobRegistry
}

func NewPool(cfg *config.Config, q queue.Queue, registry *services.JobRegistry) *Pool {
	return &Pool{
		cfg:      cfg,
		queue:    q,
		registry: registry,
	}
}

// StartWorker runs one worker slot until ctx is cancelled.
func (p *Pool) StartWorker(ctx context.Context, workerID int) {
	log.Printf("[Worker %d] starting", workerID)

	for {
		jobID, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("[Worker %d] shutting down", workerID)
				return
			}
			log.Printf("[Worker %d] queue error: %v", workerID, err)
			time.Sleep(5 * time.Second)
			continue
		}

		job, ok := p.registry.Get(jobID)
		if !ok {
			// Reaped between enqueue and dispatch.
			log.Printf("[Worker %d] job %s no longer exists, skipping", workerID, jobID)
			continue
		}

		p.runJob(workerID, job)
	}
}

func (p *Pool) runJob(workerID int, job models.DownloadJob) {
	log.Printf("[Worker %d] processing job %s (%s %s)", workerID, job.ID, job.Type, job.Format)

	p.registry.SetStatus(job.ID, models.JobStatusProcessing, "", "")

	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		p.failJob(workerID, job.ID, fmt.Sprintf("creating output directory: %v", err))
		return
	}

	cmd := exec.Command(p.cfg.YtDlpPath, BuildArgs(job, p.cfg.OutputDir)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.failJob(workerID, job.ID, fmt.Sprintf("attaching stdout: %v", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		p.failJob(workerID, job.ID, fmt.Sprintf("attaching stderr: %v", err))
		return
	}

	if err := cmd.Start(); err != nil {
		p.failJob(workerID, job.ID, fmt.Sprintf("starting %s: %v", p.cfg.YtDlpPath, err))
		return
	}

	// stderr is diagnostic only; it never changes job state.
	go p.logStderr(workerID, job.ID, stderr)

	p.trackProgress(job.ID, stdout)

	if err := cmd.Wait(); err != nil {
		msg := fmt.Sprintf("running %s: %v", p.cfg.YtDlpPath, err)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg = "yt-dlp exited with code " + strconv.Itoa(exitErr.ExitCode())
		}
		p.failJob(workerID, job.ID, msg)
		return
	}

	artifact, err := FindArtifact(p.cfg.OutputDir, job.ID)
	if err != nil {
		p.failJob(workerID, job.ID, "downloaded file not found")
		return
	}

	p.registry.SetStatus(job.ID, models.JobStatusCompleted, "", artifact)
	log.Printf("[Worker %d] job %s completed: %s", workerID, job.ID, filepath.Base(artifact))
}

func (p *Pool) failJob(workerID int, jobID, msg string) {
	log.Printf("[Worker %d] job %s failed: %s", workerID, jobID, msg)
	p.registry.SetStatus(jobID, models.JobStatusFailed, msg, "")
}

// trackProgress reads the tool's stdout line by line and forwards every
// download percentage marker to the registry. Non-matching lines are
// ignored.
func (p *Pool) trackProgress(jobID string, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		match := progressRe.FindStringSubmatch(scanner.Text())
		if match == nil {
			continue
		}
		percent, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		p.registry.SetProgress(jobID, percent)
	}
}

func (p *Pool) logStderr(workerID int, jobID string, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		log.Printf("[Worker %d] job %s yt-dlp: %s", workerID, jobID, scanner.Text())
	}
}

// BuildArgs constructs the yt-dlp invocation for a job. The output
// path is templated by the job id; yt-dlp picks the final extension.
func BuildArgs(job models.DownloadJob, outputDir string) []string {
	args := []string{
		"--newline",
		"--output", filepath.Join(outputDir, job.ID+".%(ext)s"),
	}

	if job.Type == models.TypeVideo {
		args = append(args, "--no-playlist")
	}

	if job.Format == models.FormatMP3 {
		args = append(args, "--extract-audio", "--audio-format", "mp3")
	} else {
		args = append(args, "--format", "best[ext=mp4]")
	}

	return append(args, job.URL)
}

// FindArtifact locates the produced file by its job-id prefix. The
// exact filename is not known in advance because the tool chooses the
// extension.
func FindArtifact(outputDir, jobID string) (string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return "", fmt.Errorf("reading output directory: %w", err)
	}

	var candidates []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, jobID) {
			continue
		}
		if isTempFile(name) {
			continue
		}
		candidates = append(candidates, name)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no artifact for job %s", jobID)
	}

	sort.Strings(candidates)
	return filepath.Join(outputDir, candidates[0]), nil
}

func isTempFile(name string) bool {
	for _, ext := range tempExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
