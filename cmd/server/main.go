package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"

	config "github.com/draftly/publisher/configs"
	"github.com/draftly/publisher/internal/api/handlers"
	"github.com/draftly/publisher/internal/api/middleware"
	job "github.com/draftly/publisher/internal/jobs"
	"github.com/draftly/publisher/internal/models"
	"github.com/draftly/publisher/internal/queue"
	"github.com/draftly/publisher/internal/repository"
	"github.com/draftly/publisher/internal/scheduler"
	"github.com/draftly/publisher/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	postRepo := repository.NewScheduledPostRepository(db)
	connectionRepo := repository.NewConnectionRepository(db)
	articleRepo := repository.NewArticleRepository(db)

	r2Service := service.NewR2Service(*cfg)
	facebookService := service.NewFacebookService(*cfg, articleRepo, connectionRepo)
	instagramService := service.NewInstagramService(*cfg, connectionRepo)
	wordpressService := service.NewWordpressService(*cfg)

	publishers := map[string]service.PlatformPublisher{
		models.PlatformWordpress: wordpressService,
		models.PlatformFacebook:  facebookService,
		models.PlatformInstagram: instagramService,
		models.PlatformTwitter:   service.NewStubPublisher(models.PlatformTwitter),
		models.PlatformLinkedin:  service.NewStubPublisher(models.PlatformLinkedin),
	}

	publishService := service.NewPublishService(postRepo, connectionRepo, publishers)
	postService := service.NewPostService(postRepo, connectionRepo, publishService, r2Service)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post := handlers.NewPostHandler(postService, client)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/update", post.UpdatePost)
	api.Post("/posts/remove", post.RemovePost)
	api.Post("/posts/publish", post.PublishNow)

	media := handlers.NewMediaHandler(postService)
	api.Post("/media/upload", media.UploadImages)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(connectionRepo, facebookService, instagramService)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()

	// polling loop for due posts
	sched := scheduler.New(time.Duration(cfg.PollInterval)*time.Second, postRepo, publishService)
	sched.Start()

	// queue fast path
	queueW := queue.NewQueue(publishService)

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, queueW.HandlePublishPostTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db, sched, c)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB, sched *scheduler.Scheduler, c *cron.Cron) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	sched.Stop()
	c.Stop()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
