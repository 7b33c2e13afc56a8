// Package pipeline orchestrates the work queue against the OCR
// engine, layout analyzer, and repository store — the newspaper
// pipeline's counterpart to original_source's background_service.py
// worker loop, built around the same dependency-injected Deps struct
// shape as the rest of this codebase's components.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nova-repository/newsrepo/internal/apperr"
	"github.com/nova-repository/newsrepo/internal/connector"
	"github.com/nova-repository/newsrepo/internal/domain"
	"github.com/nova-repository/newsrepo/internal/ocr"
	"github.com/nova-repository/newsrepo/internal/pubsub"
	"github.com/nova-repository/newsrepo/internal/queue"
	"github.com/nova-repository/newsrepo/internal/repository/sqlstore"
)

// Deps wires every driven component the pipeline needs.
type Deps struct {
	Queue     *queue.Queue
	Store     *sqlstore.Store
	OCREngine ocr.Engine
	Layout    ocr.LayoutAnalyzer
	Connector *connector.Connector // required only for OpPromote tasks
	Publisher *pubsub.Publisher
	Logger    *slog.Logger

	Workers       int
	PollInterval  time.Duration
	LeaseDuration time.Duration
	// BatchSize caps how many tasks a single lease call claims; tasks
	// that share an operation, parameter set, and bulk_id are grouped
	// into one batch and run under a single heartbeat loop. 1 means no
	// batching.
	BatchSize int

	// ImageLoader reads a page image from disk and reports its pixel
	// dimensions, used both to feed the OCR engine and to validate
	// segment bounding boxes against the image they were cut from.
	ImageLoader func(path string) (data []byte, width, height int, err error)
	// TextLoader reads a plain-text file (HOCR) from disk.
	TextLoader func(path string) (string, error)

	// PreprocessHook, if set, runs over a page's raw image bytes
	// before OCR. The pipeline itself stays agnostic to any particular
	// contrast/denoise algorithm; callers that want one supply it here.
	PreprocessHook PreprocessHook
}

// PreprocessHook transforms a page image's raw bytes before OCR.
type PreprocessHook func(data []byte) ([]byte, error)

// Service runs a worker pool that leases tasks and executes them
// until Stop is called.
type Service struct {
	deps Deps

	mu        sync.Mutex
	paused    bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
	scheduler *cron.Cron
}

func New(deps Deps) *Service {
	if deps.Workers <= 0 {
		deps.Workers = 2
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = 5 * time.Second
	}
	if deps.LeaseDuration <= 0 {
		deps.LeaseDuration = 5 * time.Minute
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = 1
	}
	return &Service{deps: deps, logger: deps.Logger}
}

// Start launches the worker pool plus the scheduler task in the
// background. Call Stop to shut both down gracefully.
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	for i := 0; i < s.deps.Workers; i++ {
		workerID := "worker-" + time.Now().UTC().Format("150405") + "-" + strconv.Itoa(i)
		s.wg.Add(1)
		go s.runWorker(ctx, workerID)
	}

	s.startScheduler(ctx)
}

// startScheduler runs the pipeline's one scheduler task: periodic
// reclamation of expired leases and, when a Connector is wired,
// reconciliation of orphaned promotions. Runs alongside the worker
// pool rather than as one of its workers, matching the "configurable
// pool of worker tasks plus one scheduler task" split.
func (s *Service) startScheduler(ctx context.Context) {
	c := cron.New()
	c.AddFunc("@every 1m", func() {
		if n, err := s.deps.Queue.ReclaimExpiredLeases(ctx); err != nil {
			s.logger.Warn("reclaim expired leases failed", "error", err)
		} else if n > 0 {
			s.logger.Info("reclaimed expired leases", "count", n)
		}
		if s.deps.Connector == nil {
			return
		}
		attached, cleared, err := s.deps.Connector.Reconcile(ctx)
		if err != nil {
			s.logger.Warn("reconcile failed", "error", err)
			return
		}
		if attached+cleared > 0 {
			s.logger.Info("reconciled promotions", "attached", attached, "cleared", cleared)
		}
	})
	c.Start()

	s.mu.Lock()
	s.scheduler = c
	s.mu.Unlock()
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	scheduler := s.scheduler
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	s.wg.Wait()
}

// Pause stops new leases from being taken; in-flight tasks run to
// completion.
func (s *Service) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *Service) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

func (s *Service) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Paused reports whether the service is currently refusing new
// leases, for status reporting from the CLI/control socket.
func (s *Service) Paused() bool {
	return s.isPaused()
}

func (s *Service) runWorker(ctx context.Context, workerID string) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.deps.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.isPaused() {
				continue
			}
			s.leaseAndRun(ctx, workerID)
		}
	}
}

func (s *Service) leaseAndRun(ctx context.Context, workerID string) {
	tasks, err := s.deps.Queue.Lease(ctx, workerID, s.deps.BatchSize, s.deps.LeaseDuration)
	if err != nil {
		s.logger.Error("lease failed", "worker", workerID, "error", err)
		return
	}
	for _, group := range groupTasks(tasks) {
		s.runBatch(ctx, workerID, group)
	}
}

// groupTasks buckets same-(operation, parameters, bulk_id) tasks
// together so the pipeline can hand the handler a batch instead of
// leasing and heartbeating each one separately. Order is preserved:
// a task's group appears at the position of its first member.
func groupTasks(tasks []domain.Task) [][]domain.Task {
	index := map[string]int{}
	var groups [][]domain.Task
	for _, task := range tasks {
		key := batchKey(task)
		if i, ok := index[key]; ok {
			groups[i] = append(groups[i], task)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, []domain.Task{task})
	}
	return groups
}

func batchKey(task domain.Task) string {
	bulkID := ""
	if task.BulkID != nil {
		bulkID = *task.BulkID
	}
	keys := make([]string, 0, len(task.Parameters))
	for k := range task.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var params strings.Builder
	for _, k := range keys {
		params.WriteString(k)
		params.WriteByte('=')
		params.WriteString(task.Parameters[k])
		params.WriteByte(';')
	}
	return string(task.Operation) + "|" + bulkID + "|" + params.String()
}

// runBatch heartbeats every task in the group under one ticker and
// executes each individually, so a multi-task batch costs one
// heartbeat goroutine instead of one per task while still succeeding
// or failing each task on its own.
func (s *Service) runBatch(ctx context.Context, workerID string, batch []domain.Task) {
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	taskIDs := make([]string, len(batch))
	for i, task := range batch {
		taskIDs[i] = task.TaskID
	}
	go s.heartbeatLoop(heartbeatCtx, taskIDs, workerID)

	if len(batch) > 1 {
		s.deps.Publisher.Publish(pubsub.Event{Name: "batch_started", Payload: map[string]any{"operation": string(batch[0].Operation), "count": len(batch)}})
	}

	for _, task := range batch {
		s.runTask(ctx, task)
	}
}

func (s *Service) runTask(ctx context.Context, task domain.Task) {
	s.deps.Publisher.Publish(pubsub.Event{Name: "task_started", Payload: map[string]any{"task_id": task.TaskID, "operation": string(task.Operation)}})

	err := s.execute(ctx, task)

	if err != nil {
		s.logger.Warn("task failed", "task_id", task.TaskID, "operation", task.Operation, "error", err)
		if ferr := s.deps.Queue.Fail(ctx, task.TaskID, err); ferr != nil {
			s.logger.Error("failed to record task failure", "task_id", task.TaskID, "error", ferr)
		}
		s.deps.Publisher.Publish(pubsub.Event{Name: "task_failed", Payload: map[string]any{"task_id": task.TaskID, "error": err.Error()}})
		return
	}

	if err := s.deps.Queue.Complete(ctx, task.TaskID); err != nil {
		s.logger.Error("failed to record task completion", "task_id", task.TaskID, "error", err)
		return
	}
	s.deps.Publisher.Publish(pubsub.Event{Name: "task_succeeded", Payload: map[string]any{"task_id": task.TaskID}})
}

// heartbeatLoop extends the lease on every task in taskIDs at
// lease_duration/3, the ratio original_source's background_service.py
// uses between its poll interval and lease timeout to keep a margin
// of safety.
func (s *Service) heartbeatLoop(ctx context.Context, taskIDs []string, workerID string) {
	interval := s.deps.LeaseDuration / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, taskID := range taskIDs {
				if err := s.deps.Queue.Heartbeat(ctx, taskID, workerID, s.deps.LeaseDuration); err != nil {
					s.logger.Warn("heartbeat failed", "task_id", taskID, "error", err)
				}
			}
		}
	}
}

func (s *Service) execute(ctx context.Context, task domain.Task) error {
	switch task.Operation {
	case domain.OpOCR:
		return s.executeOCR(ctx, task)
	case domain.OpSegment:
		return s.executeSegment(ctx, task)
	case domain.OpPromote:
		return s.executePromote(ctx, task)
	default:
		return apperr.Newf(apperr.Validation, "pipeline has no handler for operation %s", task.Operation)
	}
}

func (s *Service) executeOCR(ctx context.Context, task domain.Task) error {
	if task.PageID == nil {
		return apperr.New(apperr.Validation, "ocr task missing page_id")
	}
	page, err := s.deps.Store.GetPage(ctx, *task.PageID)
	if err != nil {
		return err
	}

	imageBytes, _, _, err := s.deps.ImageLoader(page.ImagePath)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "load page image for ocr", err)
	}
	if s.deps.PreprocessHook != nil {
		imageBytes, err = s.deps.PreprocessHook(imageBytes)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "preprocess page image for ocr", err)
		}
	}

	result, err := s.deps.OCREngine.RunOCR(ctx, imageBytes, task.Parameters["language"])
	if err != nil {
		return err
	}

	return s.deps.Store.AttachOCR(ctx, *task.PageID, result.Text, result.HOCR, result.EngineVersion)
}

func (s *Service) executeSegment(ctx context.Context, task domain.Task) error {
	if task.PageID == nil {
		return apperr.New(apperr.Validation, "segment task missing page_id")
	}
	page, err := s.deps.Store.GetPage(ctx, *task.PageID)
	if err != nil {
		return err
	}
	if page.OCRHOCRPath == nil {
		return apperr.Newf(apperr.Conflict, "page %s has no ocr output to segment", *task.PageID)
	}

	hocrText, err := s.deps.TextLoader(*page.OCRHOCRPath)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "load hocr for segmentation", err)
	}
	_, imageW, imageH, err := s.deps.ImageLoader(page.ImagePath)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "load page image dimensions for segmentation", err)
	}

	layoutSegments, err := s.deps.Layout.AnalyzeLayout(ctx, hocrText, nil)
	if err != nil {
		return err
	}
	filtered := ocr.Filter(layoutSegments, ocr.DefaultMinSizePx, ocr.DefaultMinConfidence)

	segments := make([]domain.Segment, 0, len(filtered))
	for _, ls := range filtered {
		segments = append(segments, domain.Segment{
			Kind:       ls.Kind,
			BBox:       ls.BBox,
			Text:       ls.Text,
			Confidence: ls.Confidence,
		})
	}

	_, err = s.deps.Store.AddSegments(ctx, *task.PageID, imageW, imageH, segments)
	return err
}

// executePromote hands a reviewed segment to the connector, the
// queued form of extract-entities: the CLI enqueues one OpPromote
// task per reviewed segment instead of promoting synchronously, so
// the run is resumable and shows up in bulk progress like any other
// task.
func (s *Service) executePromote(ctx context.Context, task domain.Task) error {
	if s.deps.Connector == nil {
		return apperr.New(apperr.Internal, "pipeline has no connector configured for promote tasks")
	}
	segmentID := task.Parameters["segment_id"]
	if segmentID == "" {
		return apperr.New(apperr.Validation, "promote task missing segment_id parameter")
	}
	_, err := s.deps.Connector.Promote(ctx, segmentID, connector.PromoteOverrides{})
	if err != nil && apperr.KindOf(err) == apperr.Conflict {
		return nil // already promoted or a near-duplicate; not a pipeline failure
	}
	return err
}
