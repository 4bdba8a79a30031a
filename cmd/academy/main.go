package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/academy/internal/auth"
	"github.com/pavelanni/academy/internal/exam"
	"github.com/pavelanni/academy/internal/handler"
	appI18n "github.com/pavelanni/academy/internal/i18n"
	"github.com/pavelanni/academy/internal/llm"
	"github.com/pavelanni/academy/internal/model"
	"github.com/pavelanni/academy/internal/pdfimport"
	"github.com/pavelanni/academy/internal/store"
)

func main() {
	// A missing .env file is fine; real environment variables still apply.
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "academy",
		Short: "Training academy administration server",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), seedCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "academy.db", "SQLite database path")
	f.String("jwt-secret", "", "Secret used to sign access tokens (required)")
	f.Duration("token-ttl", 24*time.Hour, "Access token lifetime")
	f.String("admin-password", "", "Initial admin password (or set ACADEMY_ADMIN_PASSWORD)")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty disables AI features)")
	f.String("llm-key", "", "API key for the LLM endpoint")
	f.String("llm-model", "gpt-4o-mini", "LLM model name")
	f.StringP("lang", "l", "ko", "Fallback language (en, ko)")
	f.StringSlice("cors-origins", []string{"http://localhost:3000"}, "Allowed CORS origins")
	f.String("upload-dir", "", "Directory for temporary uploads (default: system temp dir)")
	f.Int64("max-upload-mb", 10, "Maximum PDF upload size in megabytes")
	f.Int("login-rate", 10, "Login attempts allowed per IP per minute")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export exam results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "academy.db", "SQLite database path")
	f.String("exam-id", "", "Exam to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("exam-id")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the admin user and optional demo data",
		RunE:  runSeed,
	}
	f := cmd.Flags()
	f.String("db", "academy.db", "SQLite database path")
	f.String("admin-password", "", "Initial admin password (or set ACADEMY_ADMIN_PASSWORD)")
	f.Bool("demo", false, "Also create a demo course, trainee and exam")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("ACADEMY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("academy")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/academy")
	v.AddConfigPath("/etc/academy")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	issuer, err := auth.NewIssuer(v.GetString("jwt-secret"))
	if err != nil {
		return fmt.Errorf("%w: set --jwt-secret or ACADEMY_JWT_SECRET", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if n, err := db.CleanupExpiredSessions(ctx); err != nil {
		slog.Warn("failed to clean up sessions", "error", err)
	} else if n > 0 {
		slog.Info("removed expired sessions", "count", n)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// The LLM is optional. Without it PDF import and consultation analysis
	// answer 503 and everything else keeps working.
	var (
		parser   pdfimport.QuestionParser
		analyzer handler.Analyzer
	)
	if url := v.GetString("llm-url"); url != "" {
		client := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"))
		if err := client.Ping(ctx); err != nil {
			slog.Warn("LLM health check failed", "url", url, "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
		}
		parser = client
		analyzer = client
	} else {
		slog.Info("no LLM configured, AI features disabled")
	}

	uploadDir := v.GetString("upload-dir")
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	if err := os.MkdirAll(uploadDir, 0o750); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	h, err := handler.New(handler.Deps{
		Store:    db,
		Engine:   exam.New(db),
		Issuer:   issuer,
		Importer: pdfimport.New(uploadDir, parser, db),
		Analyzer: analyzer,
	}, handler.Config{
		TokenTTL:       v.GetDuration("token-ttl"),
		MaxUploadBytes: v.GetInt64("max-upload-mb") << 20,
		LoginRate:      v.GetInt("login-rate"),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   v.GetStringSlice("cors-origins"),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Language", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	go cleanupSessions(ctx, db, time.Hour)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"db", v.GetString("db"),
			"lang", lang,
			"llm", parser != nil,
			"token_ttl", v.GetDuration("token-ttl"),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func cleanupSessions(ctx context.Context, db *store.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.CleanupExpiredSessions(ctx)
			if err != nil {
				slog.Warn("failed to clean up sessions", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("removed expired sessions", "count", n)
			}
		}
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportExam(cmd.Context(), v.GetString("exam-id"))
	if err != nil {
		return fmt.Errorf("export exam: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	slog.Info("exported exam", "exam_id", export.ExamID, "results", len(export.Results))
	return nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if v.GetBool("demo") {
		if err := seedDemo(ctx, db, time.Now()); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}
	return nil
}

func seedAdmin(ctx context.Context, db *store.Store, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return errors.New("admin password is required: set --admin-password flag or ACADEMY_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
		Username:     "admin",
		Email:        "admin@localhost",
		Name:         "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}

// seedDemo creates a course owned by the admin, one enrolled trainee and a
// week-long quiz over three questions.
func seedDemo(ctx context.Context, db *store.Store, now time.Time) error {
	admin, err := db.GetUserByUsername(ctx, "admin")
	if err != nil {
		return err
	}
	if admin == nil {
		return errors.New("admin user not found")
	}
	return db.InTx(ctx, func(tx *store.Store) error {
		course, err := tx.CreateCourse(ctx, model.Course{
			Name:        "Web Frontend Basics",
			Subject:     "frontend",
			TeacherID:   admin.ID,
			MaxStudents: 30,
			Active:      true,
		})
		if err != nil {
			return err
		}
		tr, err := tx.CreateTrainee(ctx, model.Trainee{
			Name:          "Demo Trainee",
			TraineeNumber: "DEMO001",
			TraineeType:   model.TraineeJobSeeker,
			Status:        model.TraineeActive,
		})
		if err != nil {
			return err
		}
		if _, err := tx.Enroll(ctx, tr.ID, course.ID); err != nil {
			return err
		}

		var refs []model.ExamQuestionRef
		for _, q := range []model.Question{
			{Type: model.MultipleChoice, Text: "Which tag creates a hyperlink?",
				Options: []string{"<a>", "<link>", "<href>", "<url>"}, CorrectAnswer: "1", DefaultWeight: 30},
			{Type: model.TrueFalse, Text: "CSS stands for Cascading Style Sheets.", CorrectAnswer: "true", DefaultWeight: 30},
			{Type: model.ShortAnswer, Text: "What does DOM stand for?", CorrectAnswer: "document object model", DefaultWeight: 40},
		} {
			q.TeacherID = admin.ID
			q.CourseID = course.ID
			q.Difficulty = model.DifficultyEasy
			q.Active = true
			created, err := tx.CreateQuestion(ctx, q)
			if err != nil {
				return err
			}
			refs = append(refs, model.ExamQuestionRef{QuestionID: created.ID})
		}

		_, err = tx.CreateExam(ctx, model.Exam{
			CourseID:    course.ID,
			TeacherID:   admin.ID,
			Title:       "Frontend quiz",
			ExamType:    model.ExamQuiz,
			Questions:   refs,
			TotalScore:  100,
			TimeLimit:   20,
			StartTime:   now.UTC(),
			EndTime:     now.UTC().AddDate(0, 0, 7),
			AllowReview: true,
			Active:      true,
		})
		if err != nil {
			return err
		}
		slog.Info("seeded demo data", "course_id", course.ID, "trainee_number", tr.TraineeNumber)
		return nil
	})
}
