package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// transcriptExtractor is the contract the pipeline needs from the
// extraction service.
type transcriptExtractor interface {
	Extract(ctx context.Context, videoID, language string) (*ExtractionResult, error)
}

// Run is one course-generation run. Its step is observational metadata
// recorded after each transition; it is never used as a lock.
type Run struct {
	ID         string
	VideoID    string
	UserID     string
	Language   string
	Difficulty string

	mu              sync.Mutex
	step            Step
	invalidCategory string
	invalidReason   string
	failure         error
	course          *Course
	done            chan struct{}
}

// RunStatus is a point-in-time snapshot of a run, safe to return to callers.
type RunStatus struct {
	RunID           string  `json:"runId"`
	Step            Step    `json:"step"`
	InvalidCategory string  `json:"invalidCategory,omitempty"`
	InvalidReason   string  `json:"invalidReason,omitempty"`
	Error           string  `json:"error,omitempty"`
	Course          *Course `json:"course,omitempty"`
}

// Step returns the run's current step.
func (r *Run) Step() Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.step
}

// Wait blocks until the run reaches a terminal state.
func (r *Run) Wait() {
	<-r.done
}

// Snapshot returns the caller-visible view of the run. Failures surface
// only their localized user message; diagnostics stay in the logs.
func (r *Run) Snapshot() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := RunStatus{
		RunID:           r.ID,
		Step:            r.step,
		InvalidCategory: r.invalidCategory,
		InvalidReason:   r.invalidReason,
		Course:          r.course,
	}
	if r.failure != nil {
		if appErr, ok := IsAppError(r.failure); ok {
			status.Error = appErr.UserMessage
		} else {
			status.Error = userMessage(r.Language, "generic")
		}
	}
	return status
}

type admission struct {
	runID     string
	expiresAt time.Time
}

// Pipeline sequences extraction, the validity gate, and the generation
// stages as independently retryable units of work.
type Pipeline struct {
	extractor transcriptExtractor
	stages    *courseStages
	settings  *Settings
	logger    *logrus.Logger

	stagePolicy RetryPolicy
	ttl         time.Duration
	now         func() time.Time

	mu         sync.Mutex
	admissions map[string]admission
	runs       map[string]*Run
}

func newPipeline(extractor transcriptExtractor, stages *courseStages, settings *Settings, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		extractor:   extractor,
		stages:      stages,
		settings:    settings,
		logger:      logger,
		stagePolicy: settings.StageRetry.policy(isTransientGenerationError),
		ttl:         settings.admissionTTL(),
		now:         time.Now,
		admissions:  make(map[string]admission),
		runs:        make(map[string]*Run),
	}
}

func admissionKey(userID, videoID string) string {
	return userID + ":" + videoID
}

// Admit applies idempotent admission control: a request whose (userID,
// videoID) key is still inside the TTL window is coalesced onto the
// existing run instead of starting duplicate work. The returned bool
// reports whether the request was coalesced.
func (p *Pipeline) Admit(req CourseRequest) (*Run, bool) {
	key := admissionKey(req.UserID, req.VideoID)
	now := p.now()

	p.mu.Lock()
	if a, ok := p.admissions[key]; ok {
		if now.Before(a.expiresAt) {
			run := p.runs[a.runID]
			p.mu.Unlock()
			p.logger.WithFields(logrus.Fields{
				"run_id":   run.ID,
				"video_id": req.VideoID,
			}).Info("admission coalesced onto existing run")
			return run, true
		}
		delete(p.admissions, key)
		delete(p.runs, a.runID)
	}

	run := &Run{
		ID:         uuid.NewString(),
		VideoID:    req.VideoID,
		UserID:     req.UserID,
		Language:   req.Language,
		Difficulty: req.Difficulty,
		step:       StepStartingGeneration,
		done:       make(chan struct{}),
	}
	p.admissions[key] = admission{runID: run.ID, expiresAt: now.Add(p.ttl)}
	p.runs[run.ID] = run
	p.mu.Unlock()

	go p.execute(run)
	return run, false
}

// RunByID looks up a run snapshot target.
func (p *Pipeline) RunByID(id string) (*Run, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	run, ok := p.runs[id]
	return run, ok
}

func (p *Pipeline) transition(run *Run, step Step) {
	run.mu.Lock()
	run.step = step
	run.mu.Unlock()
	p.logger.WithFields(logrus.Fields{
		"run_id": run.ID,
		"step":   string(step),
	}).Info("pipeline step")
}

func (p *Pipeline) fail(run *Run, err error) {
	run.mu.Lock()
	run.failure = err
	run.step = StepFailed
	run.mu.Unlock()

	entry := p.logger.WithField("run_id", run.ID).WithError(err)
	if appErr, ok := IsAppError(err); ok {
		entry = entry.WithFields(logrus.Fields{
			"code":        appErr.Code,
			"http_status": appErr.HTTPStatus,
			"context":     appErr.Context,
		})
	}
	entry.Error("pipeline run failed")
}

// execute drives one run through the state machine. It runs on its own
// goroutine; callers observe progress through snapshots and Wait.
func (p *Pipeline) execute(run *Run) {
	defer close(run.done)
	ctx := context.Background()

	course := &Course{ID: uuid.NewString(), VideoID: run.VideoID, CreatedAt: p.now()}

	var extraction *ExtractionResult
	err := p.runStage(ctx, run, "extract_transcript", p.settings.extractTimeout(), noRetry, func(ctx context.Context) error {
		result, err := p.extractor.Extract(ctx, run.VideoID, run.Language)
		if err != nil {
			return err
		}
		extraction = result
		return nil
	})
	if err != nil {
		p.fail(run, err)
		return
	}

	p.transition(run, StepValidatingTranscript)
	var verdict *TranscriptVerdict
	err = p.runStage(ctx, run, "validate_transcript", p.settings.Agents.Validator.timeout(), p.stagePolicy, func(ctx context.Context) error {
		v, err := p.stages.validateTranscript(ctx, run.Language, extraction.Segments)
		if err != nil {
			return err
		}
		verdict = v
		return nil
	})
	if err != nil {
		p.fail(run, err)
		return
	}

	// Invalid content is a normal terminal state, not an error: the run
	// halts here and no generation stage is ever dispatched.
	if !verdict.Valid {
		var invalid *InvalidVerdict
		err = p.runStage(ctx, run, "classify_invalid_content", p.settings.Agents.Validator.timeout(), p.stagePolicy, func(ctx context.Context) error {
			v, err := p.stages.classifyInvalid(ctx, run.Language, extraction.Segments)
			if err != nil {
				return err
			}
			invalid = v
			return nil
		})
		if err != nil {
			p.fail(run, err)
			return
		}
		run.mu.Lock()
		run.invalidCategory = invalid.Category
		run.invalidReason = invalid.Reason
		run.mu.Unlock()
		p.transition(run, StepInvalidContent)
		return
	}

	// Categorization and description are independent and run concurrently;
	// the recorded step covers the pair.
	p.transition(run, StepCategorizingCourse)
	var category *CourseCategory
	var description *CourseDescription
	err = fanOut(2, func(i int) error {
		if i == 0 {
			return p.runStage(ctx, run, "categorize_course", p.settings.Agents.Categorizer.timeout(), p.stagePolicy, func(ctx context.Context) error {
				c, err := p.stages.categorize(ctx, categorizePayload{CourseID: course.ID, Language: run.Language, Segments: extraction.Segments})
				if err != nil {
					return err
				}
				category = c
				return nil
			})
		}
		return p.runStage(ctx, run, "describe_course", p.settings.Agents.Describer.timeout(), p.stagePolicy, func(ctx context.Context) error {
			d, err := p.stages.describe(ctx, describePayload{CourseID: course.ID, Language: run.Language, Segments: extraction.Segments})
			if err != nil {
				return err
			}
			description = d
			return nil
		})
	})
	if err != nil {
		p.fail(run, err)
		return
	}

	p.transition(run, StepGeneratingChapters)
	var plan *ChapterPlan
	err = p.runStage(ctx, run, "generate_chapters", p.settings.Agents.Chapters.timeout(), p.stagePolicy, func(ctx context.Context) error {
		c, err := p.stages.planChapters(ctx, chaptersPayload{CourseID: course.ID, Language: run.Language, Difficulty: run.Difficulty, Segments: extraction.Segments})
		if err != nil {
			return err
		}
		plan = c
		return nil
	})
	if err != nil {
		p.fail(run, err)
		return
	}

	p.transition(run, StepGeneratingLessons)
	lessons := make([]LessonContent, len(plan.Chapters))
	err = fanOut(len(plan.Chapters), func(i int) error {
		name := fmt.Sprintf("generate_lesson_%d", i)
		return p.runStage(ctx, run, name, p.settings.Agents.Lessons.timeout(), p.stagePolicy, func(ctx context.Context) error {
			content, err := p.stages.generateLesson(ctx, lessonPayload{CourseID: course.ID, Chapter: plan.Chapters[i], Segments: extraction.Segments, Language: run.Language})
			if err != nil {
				return err
			}
			lessons[i] = *content
			return nil
		})
	})
	if err != nil {
		p.fail(run, err)
		return
	}

	p.transition(run, StepResearchingKeyConcepts)
	concepts := make([][]ConceptDetail, len(lessons))
	err = fanOut(len(lessons), func(i int) error {
		// Lessons without key concepts skip research entirely.
		if len(lessons[i].KeyConcepts) == 0 {
			return nil
		}
		name := fmt.Sprintf("research_concepts_%d", i)
		return p.runStage(ctx, run, name, p.settings.Agents.Concepts.timeout(), p.stagePolicy, func(ctx context.Context) error {
			list, err := p.stages.researchConcepts(ctx, conceptsPayload{CourseID: course.ID, Lesson: lessons[i], Language: run.Language})
			if err != nil {
				return err
			}
			concepts[i] = list.Concepts
			return nil
		})
	})
	if err != nil {
		p.fail(run, err)
		return
	}

	p.transition(run, StepGeneratingExercises)
	exercises := make([][]Exercise, len(lessons))
	err = fanOut(len(lessons), func(i int) error {
		name := fmt.Sprintf("generate_exercises_%d", i)
		return p.runStage(ctx, run, name, p.settings.Agents.Exercises.timeout(), p.stagePolicy, func(ctx context.Context) error {
			set, err := p.stages.generateExercises(ctx, exercisesPayload{CourseID: course.ID, Lesson: lessons[i], Language: run.Language})
			if err != nil {
				return err
			}
			exercises[i] = set.Exercises
			return nil
		})
	})
	if err != nil {
		p.fail(run, err)
		return
	}

	p.transition(run, StepGeneratingAssessment)
	var assessment *Assessment
	err = p.runStage(ctx, run, "generate_assessment", p.settings.Agents.Assessment.timeout(), p.stagePolicy, func(ctx context.Context) error {
		a, err := p.stages.generateAssessment(ctx, assessmentPayload{CourseID: course.ID, Language: run.Language, Lessons: lessons})
		if err != nil {
			return err
		}
		assessment = a
		return nil
	})
	if err != nil {
		p.fail(run, err)
		return
	}

	course.Title = description.Title
	course.Description = description.Description
	course.Category = category.Category
	course.Assessment = assessment
	course.Chapters = make([]Chapter, len(plan.Chapters))
	for i, outline := range plan.Chapters {
		course.Chapters[i] = Chapter{
			Index:   i,
			Title:   outline.Title,
			Summary: outline.Summary,
			Lessons: []Lesson{{
				Index:       i,
				Title:       lessons[i].Title,
				Content:     lessons[i].Content,
				KeyConcepts: concepts[i],
				Exercises:   exercises[i],
			}},
		}
	}

	run.mu.Lock()
	run.course = course
	run.step = StepCompleted
	run.mu.Unlock()
	p.logger.WithFields(logrus.Fields{
		"run_id":   run.ID,
		"chapters": len(course.Chapters),
	}).Info("course generation completed")
}

// noRetry runs a stage exactly once; used where the unit of work already
// retries internally (the extraction service's tool calls).
var noRetry = RetryPolicy{}

// runStage executes one unit of work with its declared maximum duration and
// retry policy, logging start/complete/failure transitions.
func (p *Pipeline) runStage(ctx context.Context, run *Run, name string, timeout time.Duration, policy RetryPolicy, fn func(context.Context) error) error {
	logger := p.logger.WithFields(logrus.Fields{
		"run_id": run.ID,
		"stage":  name,
	})
	logger.Info("stage started")
	started := time.Now()

	_, err := retryCall(ctx, policy, func() (struct{}, error) {
		stageCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return struct{}{}, fn(stageCtx)
	})
	if err != nil {
		logger.WithError(err).WithField("duration", time.Since(started).String()).Error("stage failed")
		return err
	}

	logger.WithField("duration", time.Since(started).String()).Info("stage completed")
	return nil
}

// fanOut dispatches n sibling units of work concurrently and waits for all
// of them (fan-in) before returning the first error observed. Siblings have
// no ordering guarantee and must not depend on each other's side effects.
func fanOut(n int, fn func(i int) error) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := fn(i); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	return firstErr
}
