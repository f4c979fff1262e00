package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	settingsPath string
	apiKey       string
	authToken    string
	logLevel     string
	logJSON      bool
)

var rootCmd = &cobra.Command{
	Use:   "coursegen",
	Short: "Generates structured courses from video transcripts",
	Long:  `Extracts video captions with yt-dlp and turns them into multi-lesson courses through a chain of AI generation stages.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; flags and the environment still apply.
		_ = godotenv.Load()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the extraction and course-generation HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		if err := ensureConfigExists(); err != nil {
			return err
		}
		settings, err := loadSettings(settingsPath)
		if err != nil {
			return err
		}

		token := authToken
		if token == "" {
			token = os.Getenv("COURSEGEN_API_TOKEN")
		}
		if token == "" {
			return fmt.Errorf("API token required: use --auth-token or COURSEGEN_API_TOKEN")
		}

		extractor, pipeline, err := buildComponents(settings, logger)
		if err != nil {
			return err
		}

		srv := newServer(extractor, pipeline, settings, token, logger)
		logger.WithField("addr", settings.Server.Addr).Info("listening")
		return http.ListenAndServe(settings.Server.Addr, srv.routes())
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <video-id>",
	Short: "Extract and normalize a video transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		settings, err := loadSettings(settingsPath)
		if err != nil {
			return err
		}
		language, _ := cmd.Flags().GetString("language")
		if language == "" {
			language = settings.DefaultLanguage
		}

		fetcher := newMediaFetcher(settings.YTDLPBinary, logger, settings.ToolRetry.policy(nil))
		extractor := newExtractor(fetcher, logger)

		result, err := extractor.Extract(cmd.Context(), args[0], language)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(result)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <video-id>",
	Short: "Run the full course-generation pipeline for a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		settings, err := loadSettings(settingsPath)
		if err != nil {
			return err
		}
		language, _ := cmd.Flags().GetString("language")
		if language == "" {
			language = settings.DefaultLanguage
		}
		difficulty, _ := cmd.Flags().GetString("difficulty")
		userID, _ := cmd.Flags().GetString("user")

		_, pipeline, err := buildComponents(settings, logger)
		if err != nil {
			return err
		}

		run, _ := pipeline.Admit(CourseRequest{
			VideoID:    args[0],
			UserID:     userID,
			Language:   language,
			Difficulty: difficulty,
		})
		run.Wait()

		snapshot := run.Snapshot()
		if snapshot.Step == StepFailed {
			return fmt.Errorf("course generation failed: %s", snapshot.Error)
		}
		return json.NewEncoder(os.Stdout).Encode(snapshot)
	},
}

// buildComponents wires the fetcher, extractor, generation stages, and
// pipeline with one shared logger instance.
func buildComponents(settings *Settings, logger *logrus.Logger) (*Extractor, *Pipeline, error) {
	key := apiKey
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		return nil, nil, fmt.Errorf("API key required: use --api-key or ANTHROPIC_API_KEY")
	}

	generator, err := newAnthropicGenerator(key, logger)
	if err != nil {
		return nil, nil, err
	}

	fetcher := newMediaFetcher(settings.YTDLPBinary, logger, settings.ToolRetry.policy(nil))
	extractor := newExtractor(fetcher, logger)
	stages := newCourseStages(generator, newReferenceFetcher(logger), settings)
	pipeline := newPipeline(extractor, stages, settings, logger)
	return extractor, pipeline, nil
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	if logJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", filepath.Join(defaultConfigDir, "settings.yaml"), "Path to settings file")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Anthropic API key")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs")

	serveCmd.Flags().StringVar(&authToken, "auth-token", "", "Bearer token required by API callers")

	extractCmd.Flags().String("language", "", "Caption language (defaults to settings)")

	generateCmd.Flags().String("language", "", "Course language (defaults to settings)")
	generateCmd.Flags().String("difficulty", "beginner", "Target difficulty")
	generateCmd.Flags().String("user", "cli", "User identifier for admission control")

	rootCmd.AddCommand(serveCmd, extractCmd, generateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
