package main

import "time"

// TranscriptSegment is a single normalized caption cue. Start is a
// zero-padded hh:mm:ss timecode; segments are produced only by the parsers.
type TranscriptSegment struct {
	Text  string `json:"text"`
	Start string `json:"start"`
}

// ExtractionResult is the output of one transcript extraction call.
type ExtractionResult struct {
	Segments     []TranscriptSegment `json:"transcript"`
	SourceFile   string              `json:"file"`
	SegmentCount int                 `json:"segments"`
}

// Step identifies the current position of a course-generation run. It is
// observational metadata recorded after each transition, not a lock.
type Step string

const (
	StepStartingGeneration     Step = "starting_generation"
	StepValidatingTranscript   Step = "validating_transcript"
	StepCategorizingCourse     Step = "categorizing_course"
	StepDescribingCourse       Step = "describing_course"
	StepGeneratingChapters     Step = "generating_chapters"
	StepGeneratingLessons      Step = "generating_lessons"
	StepResearchingKeyConcepts Step = "researching_key_concepts"
	StepGeneratingExercises    Step = "generating_exercises"
	StepGeneratingAssessment   Step = "generating_assessment"
	StepInvalidContent         Step = "invalid_content"
	StepCompleted              Step = "completed"
	StepFailed                 Step = "failed"
)

// CourseRequest is the entry payload for a course-generation run.
type CourseRequest struct {
	VideoID    string `json:"videoId"`
	UserID     string `json:"userId"`
	Language   string `json:"language"`
	Difficulty string `json:"difficulty"`
}

// Course is the assembled output of a completed run.
type Course struct {
	ID          string      `json:"id"`
	VideoID     string      `json:"videoId"`
	Title       string      `json:"title"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Chapters    []Chapter   `json:"chapters"`
	Assessment  *Assessment `json:"assessment,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Chapter groups the lessons generated for one outline entry.
type Chapter struct {
	Index   int      `json:"index"`
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Lessons []Lesson `json:"lessons"`
}

// Lesson carries the generated lesson body plus the per-lesson enrichments
// produced by the concept-research and exercise fan-out stages.
type Lesson struct {
	Index       int             `json:"index"`
	Title       string          `json:"title"`
	Content     string          `json:"content"`
	KeyConcepts []ConceptDetail `json:"keyConcepts,omitempty"`
	Exercises   []Exercise      `json:"exercises,omitempty"`
}

// Structured generation outputs. Each type doubles as the JSON schema the
// generation service is asked to satisfy, so stage results are never
// untyped maps.

// TranscriptVerdict is the validity-gate classification result.
type TranscriptVerdict struct {
	Valid bool `json:"valid"`
}

// InvalidVerdict explains why a transcript was rejected. Category is drawn
// from the closed set configured in settings.
type InvalidVerdict struct {
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

// CourseCategory is the categorization stage output.
type CourseCategory struct {
	Category string `json:"category"`
}

// CourseDescription is the description stage output.
type CourseDescription struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ChapterOutline is one planned chapter.
type ChapterOutline struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// ChapterPlan is the chapter-planning stage output.
type ChapterPlan struct {
	Chapters []ChapterOutline `json:"chapters"`
}

// LessonContent is the per-chapter lesson generation output. KeyConcepts
// seeds the research fan-out; References lists optional further-reading
// URLs fetched best-effort during concept research.
type LessonContent struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	KeyConcepts []string `json:"keyConcepts"`
	References  []string `json:"references"`
}

// ConceptDetail is one researched key concept.
type ConceptDetail struct {
	Name        string `json:"name"`
	Explanation string `json:"explanation"`
}

// ConceptList is the concept-research stage output.
type ConceptList struct {
	Concepts []ConceptDetail `json:"concepts"`
}

// Exercise is a single multiple-choice exercise.
type Exercise struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}

// ExerciseSet is the per-lesson exercise generation output.
type ExerciseSet struct {
	Exercises []Exercise `json:"exercises"`
}

// Assessment is the final course-wide assessment.
type Assessment struct {
	Questions []Exercise `json:"questions"`
}
