package main

import (
	"context"
	_ "embed"
	"fmt"
	"slices"
	"strings"
)

//go:embed config/prompts/validator-system-prompt.md
var validatorSystemPrompt string

//go:embed config/prompts/classifier-system-prompt.md
var classifierSystemPrompt string

//go:embed config/prompts/categorizer-system-prompt.md
var categorizerSystemPrompt string

//go:embed config/prompts/describer-system-prompt.md
var describerSystemPrompt string

//go:embed config/prompts/chapters-system-prompt.md
var chaptersSystemPrompt string

//go:embed config/prompts/lesson-system-prompt.md
var lessonSystemPrompt string

//go:embed config/prompts/concepts-system-prompt.md
var conceptsSystemPrompt string

//go:embed config/prompts/exercises-system-prompt.md
var exercisesSystemPrompt string

//go:embed config/prompts/assessment-system-prompt.md
var assessmentSystemPrompt string

// Stage payloads. Each carries only the slice of data its stage needs and is
// immutable once dispatched, so a stage can be retried without re-deriving
// upstream results.

type categorizePayload struct {
	CourseID string
	Language string
	Segments []TranscriptSegment
}

type describePayload struct {
	CourseID string
	Language string
	Segments []TranscriptSegment
}

type chaptersPayload struct {
	CourseID   string
	Language   string
	Difficulty string
	Segments   []TranscriptSegment
}

type lessonPayload struct {
	CourseID string
	Chapter  ChapterOutline
	Segments []TranscriptSegment
	Language string
}

type conceptsPayload struct {
	CourseID string
	Lesson   LessonContent
	Language string
}

type exercisesPayload struct {
	CourseID string
	Lesson   LessonContent
	Language string
}

type assessmentPayload struct {
	CourseID string
	Language string
	Lessons  []LessonContent
}

// courseStages wraps the generation service with one typed call per
// pipeline stage.
type courseStages struct {
	generator  Generator
	references *referenceFetcher
	settings   *Settings
}

func newCourseStages(generator Generator, references *referenceFetcher, settings *Settings) *courseStages {
	return &courseStages{generator: generator, references: references, settings: settings}
}

func (s *courseStages) request(agent AgentSettings, system, prompt string) GenerationRequest {
	return GenerationRequest{
		System:      system,
		Prompt:      prompt,
		Model:       agent.Model,
		MaxTokens:   agent.MaxTokens,
		Temperature: agent.Temperature,
	}
}

// validateTranscript is the validity gate's first call: a yes/no
// classification of whether the transcript is educational.
func (s *courseStages) validateTranscript(ctx context.Context, language string, segments []TranscriptSegment) (*TranscriptVerdict, error) {
	prompt := "Transcript:\n" + s.transcriptExcerpt(segments)
	return generateTyped[TranscriptVerdict](ctx, s.generator,
		s.request(s.settings.Agents.Validator, validatorSystemPrompt, prompt))
}

// classifyInvalid produces the closed-set category plus a human-readable
// reason for a rejected transcript.
func (s *courseStages) classifyInvalid(ctx context.Context, language string, segments []TranscriptSegment) (*InvalidVerdict, error) {
	system := strings.ReplaceAll(classifierSystemPrompt, "{{.categories}}", "- "+strings.Join(s.settings.InvalidCategories, "\n- "))
	system = strings.ReplaceAll(system, "{{.language}}", language)
	prompt := "Transcript:\n" + s.transcriptExcerpt(segments)

	verdict, err := generateTyped[InvalidVerdict](ctx, s.generator,
		s.request(s.settings.Agents.Validator, system, prompt))
	if err != nil {
		return nil, err
	}
	if !slices.Contains(s.settings.InvalidCategories, verdict.Category) {
		verdict.Category = "other"
	}
	return verdict, nil
}

func (s *courseStages) categorize(ctx context.Context, payload categorizePayload) (*CourseCategory, error) {
	system := strings.ReplaceAll(categorizerSystemPrompt, "{{.language}}", payload.Language)
	prompt := "Transcript:\n" + s.transcriptExcerpt(payload.Segments)
	return generateTyped[CourseCategory](ctx, s.generator,
		s.request(s.settings.Agents.Categorizer, system, prompt))
}

func (s *courseStages) describe(ctx context.Context, payload describePayload) (*CourseDescription, error) {
	system := strings.ReplaceAll(describerSystemPrompt, "{{.language}}", payload.Language)
	prompt := "Transcript:\n" + s.transcriptExcerpt(payload.Segments)
	return generateTyped[CourseDescription](ctx, s.generator,
		s.request(s.settings.Agents.Describer, system, prompt))
}

func (s *courseStages) planChapters(ctx context.Context, payload chaptersPayload) (*ChapterPlan, error) {
	system := strings.ReplaceAll(chaptersSystemPrompt, "{{.language}}", payload.Language)
	system = strings.ReplaceAll(system, "{{.difficulty}}", payload.Difficulty)
	prompt := "Transcript:\n" + s.transcriptExcerpt(payload.Segments)

	plan, err := generateTyped[ChapterPlan](ctx, s.generator,
		s.request(s.settings.Agents.Chapters, system, prompt))
	if err != nil {
		return nil, err
	}
	if len(plan.Chapters) == 0 {
		return nil, fmt.Errorf("chapter plan is empty")
	}
	for i := range plan.Chapters {
		plan.Chapters[i].Index = i
	}
	return plan, nil
}

func (s *courseStages) generateLesson(ctx context.Context, payload lessonPayload) (*LessonContent, error) {
	system := strings.ReplaceAll(lessonSystemPrompt, "{{.language}}", payload.Language)
	prompt := fmt.Sprintf("Chapter: %s\nChapter summary: %s\n\nTranscript:\n%s",
		payload.Chapter.Title, payload.Chapter.Summary, s.transcriptExcerpt(payload.Segments))
	return generateTyped[LessonContent](ctx, s.generator,
		s.request(s.settings.Agents.Lessons, system, prompt))
}

// researchConcepts fetches the lesson's suggested references best-effort
// and asks for a self-contained explanation of each key concept.
func (s *courseStages) researchConcepts(ctx context.Context, payload conceptsPayload) (*ConceptList, error) {
	system := strings.ReplaceAll(conceptsSystemPrompt, "{{.language}}", payload.Language)

	var b strings.Builder
	fmt.Fprintf(&b, "Lesson: %s\n\nKey concepts:\n", payload.Lesson.Title)
	for _, concept := range payload.Lesson.KeyConcepts {
		fmt.Fprintf(&b, "- %s\n", concept)
	}
	fmt.Fprintf(&b, "\nLesson content:\n%s\n", limitChars(payload.Lesson.Content, s.settings.ContentMaxTokens*4))

	if s.references != nil {
		for _, doc := range s.references.FetchAll(ctx, payload.Lesson.References) {
			fmt.Fprintf(&b, "\nReference (%s):\n%s\n", doc.URL, limitChars(doc.Markdown, 8000))
		}
	}

	return generateTyped[ConceptList](ctx, s.generator,
		s.request(s.settings.Agents.Concepts, system, b.String()))
}

func (s *courseStages) generateExercises(ctx context.Context, payload exercisesPayload) (*ExerciseSet, error) {
	system := strings.ReplaceAll(exercisesSystemPrompt, "{{.language}}", payload.Language)
	prompt := fmt.Sprintf("Lesson: %s\n\nLesson content:\n%s",
		payload.Lesson.Title, limitChars(payload.Lesson.Content, s.settings.ContentMaxTokens*4))
	return generateTyped[ExerciseSet](ctx, s.generator,
		s.request(s.settings.Agents.Exercises, system, prompt))
}

func (s *courseStages) generateAssessment(ctx context.Context, payload assessmentPayload) (*Assessment, error) {
	system := strings.ReplaceAll(assessmentSystemPrompt, "{{.language}}", payload.Language)

	var b strings.Builder
	b.WriteString("Course lessons:\n")
	for _, lesson := range payload.Lessons {
		fmt.Fprintf(&b, "\n## %s\n%s\n", lesson.Title, limitChars(lesson.Content, 6000))
	}

	return generateTyped[Assessment](ctx, s.generator,
		s.request(s.settings.Agents.Assessment, system, b.String()))
}

// transcriptExcerpt renders segments as "[hh:mm:ss] text" lines, limited to
// the configured token budget (4 chars ≈ 1 token).
func (s *courseStages) transcriptExcerpt(segments []TranscriptSegment) string {
	var b strings.Builder
	for _, segment := range segments {
		fmt.Fprintf(&b, "[%s] %s\n", segment.Start, segment.Text)
	}
	return limitChars(b.String(), s.settings.ContentMaxTokens*4)
}

func limitChars(content string, maxChars int) string {
	if len(content) <= maxChars {
		return content
	}
	return content[:maxChars] + "..."
}
