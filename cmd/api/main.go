package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/campus-erp/backend/internal/config"
	"github.com/campus-erp/backend/internal/database"
	"github.com/campus-erp/backend/internal/handlers"
	"github.com/campus-erp/backend/internal/middleware"
	"github.com/campus-erp/backend/internal/models"
	"github.com/campus-erp/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// financeLogger is the default finance collaborator: it only records the
// refund decision. Real fee-ledger integration lives upstream.
type financeLogger struct{}

func (financeLogger) RefundApproved(subjectID uuid.UUID, amount float64) {
	log.Printf("refund approved: subject=%s amount=%.2f", subjectID, amount)
}

// @title Assessment & Marks Approval API
// @version 1.0
// @description Internal assessment component definitions, marks approval workflow, and revaluation engine
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if len(os.Args) > 1 {
		handleCommand(os.Args[1])
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if cfg.Server.Env == "development" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	// CORS
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		for _, allowedOrigin := range cfg.CORS.Origins {
			if origin == allowedOrigin {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check - simple endpoint that doesn't require DB
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "assessment-api"})
	})
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "Assessment & Marks Approval API", "status": "running"})
	})

	// Metrics
	if cfg.Monitoring.PrometheusEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// Swagger
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Services
	authService := services.NewAuthService(db, cfg)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(db, authService)
	referenceHandler := handlers.NewReferenceHandler(db)
	componentHandler := handlers.NewComponentHandler(db)
	marksHandler := handlers.NewMarksHandler(db)
	approvalHandler := handlers.NewApprovalHandler(db)
	graceHandler := handlers.NewGraceHandler(db)
	revaluationHandler := handlers.NewRevaluationHandler(db, financeLogger{})
	auditHandler := handlers.NewAuditHandler(db)

	// Routes
	v1 := r.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authHandler.Logout)
		}

		// Protected routes
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(authService))
		{
			// Admin only routes
			admin := protected.Group("")
			admin.Use(middleware.RequireAdmin())
			{
				admin.GET("/users", userHandler.List)
				admin.POST("/users", userHandler.Create)
				admin.GET("/users/:id", userHandler.Get)
				admin.PUT("/users/:id", userHandler.Update)
				admin.DELETE("/users/:id", userHandler.Delete)

				admin.POST("/grace-policies", graceHandler.Create)
				admin.DELETE("/grace-policies/:id", graceHandler.Deactivate)

				admin.GET("/audit/recent", auditHandler.GetRecentActivity)
				admin.GET("/audit/resources/:id", auditHandler.GetResourceTrail)
			}

			// Blueprint management
			define := protected.Group("")
			define.Use(middleware.RequireCapability(services.CapDefine, services.CapAdmin))
			{
				define.POST("/components", componentHandler.Define)
				define.PUT("/components/:id", componentHandler.Edit)
			}

			// Marks entry
			entry := protected.Group("")
			entry.Use(middleware.RequireCapability(services.CapMarksEnter, services.CapAdmin))
			{
				entry.PUT("/marks", marksHandler.Upsert)
				entry.POST("/marks/submit", marksHandler.Submit)
			}

			// Revaluation desk
			reval := protected.Group("")
			reval.Use(middleware.RequireCapability(services.CapRevaluate, services.CapAdmin))
			{
				reval.POST("/revaluations", revaluationHandler.Open)
				reval.POST("/revaluations/:id/remarks", revaluationHandler.EnterRemarks)
				reval.POST("/revaluations/:id/reconcile", revaluationHandler.Reconcile)
			}

			// All authenticated users; course-level approval rights are
			// checked inside the services per capability membership.
			protected.GET("/courses", referenceHandler.ListCourses)
			protected.GET("/courses/:id", referenceHandler.GetCourse)
			protected.GET("/terms", referenceHandler.ListTerms)
			protected.GET("/component-types", referenceHandler.ListComponentTypes)
			protected.GET("/components", componentHandler.List)
			protected.GET("/components/:id/readiness", componentHandler.Readiness)
			protected.GET("/components/:id/scores", componentHandler.Scores)
			protected.POST("/components/:id/evaluate", componentHandler.Evaluate)
			protected.GET("/composite", componentHandler.Composite)
			protected.GET("/marks", marksHandler.List)
			protected.GET("/approvals/batches", approvalHandler.Batches)
			protected.POST("/approvals/transition", approvalHandler.Transition)
			protected.POST("/approvals/bulk", approvalHandler.BulkTransition)
			protected.GET("/grace-policies", graceHandler.List)
			protected.GET("/revaluations", revaluationHandler.List)
		}
	}

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func handleCommand(cmd string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	switch cmd {
	case "migrate":
		if err := database.Migrate(db); err != nil {
			log.Fatal("Migration failed:", err)
		}
		log.Println("Migration completed successfully")

	case "seed-admin":
		seedAdmin(db, cfg)

	case "seed-reference":
		seedReference(db)

	default:
		log.Printf("Unknown command: %s", cmd)
	}
}

func seedAdmin(db *gorm.DB, cfg *config.Config) {
	authService := services.NewAuthService(db, cfg)

	var count int64
	db.Model(&models.User{}).Where("role = ?", "system_admin").Count(&count)
	if count > 0 {
		log.Println("System admin already exists")
		return
	}

	sysAdmin := &models.User{
		Email:        "sysadmin@campus.edu",
		FullName:     "System Administrator",
		Role:         "system_admin",
		IsActive:     true,
		Capabilities: models.StringList{services.CapAdmin, services.CapApproveAll},
	}
	if err := authService.CreateUser(sysAdmin, "Admin@123"); err != nil {
		log.Fatal("Failed to create system admin:", err)
	}
	log.Println("System Admin: sysadmin@campus.edu / Admin@123")

	faculty := &models.User{
		Email:        "faculty@campus.edu",
		FullName:     "Faculty Member",
		Role:         "faculty",
		IsActive:     true,
		Capabilities: models.StringList{services.CapMarksEnter, services.CapDefine},
	}
	if err := authService.CreateUser(faculty, "Faculty@123"); err != nil {
		log.Fatal("Failed to create faculty:", err)
	}
	log.Println("Faculty: faculty@campus.edu / Faculty@123")

	hod := &models.User{
		Email:        "hod@campus.edu",
		FullName:     "Head of Department",
		Role:         "hod",
		IsActive:     true,
		Capabilities: models.StringList{services.CapApproveAll, services.CapRevaluate},
	}
	if err := authService.CreateUser(hod, "Hod@12345"); err != nil {
		log.Fatal("Failed to create HOD:", err)
	}
	log.Println("HOD: hod@campus.edu / Hod@12345")
}

func seedReference(db *gorm.DB) {
	log.Println("Seeding reference data...")

	var count int64
	db.Model(&models.ComponentType{}).Count(&count)
	if count > 0 {
		log.Println("Reference data already exists")
		return
	}

	componentTypes := []models.ComponentType{
		{Name: "Quiz", Code: "QZ", Description: "Short in-class quizzes"},
		{Name: "Assignment", Code: "AS", Description: "Take-home assignments"},
		{Name: "Mid-Term Examination", Code: "MT", Description: "Mid-semester written examination"},
		{Name: "Laboratory", Code: "LAB", Description: "Practical laboratory work"},
		{Name: "Seminar", Code: "SEM", Description: "Student seminar presentation"},
		{Name: "Attendance", Code: "ATT", Description: "Attendance-based marks"},
		{Name: "Project", Code: "PRJ", Description: "Course project"},
	}
	if err := db.CreateInBatches(componentTypes, 100).Error; err != nil {
		log.Fatal("Failed to seed component types:", err)
	}

	courses := []models.Course{
		{Code: "CS301", Title: "Data Structures", Department: "Computer Science", Credits: 4},
		{Code: "CS302", Title: "Operating Systems", Department: "Computer Science", Credits: 4},
		{Code: "MA201", Title: "Linear Algebra", Department: "Mathematics", Credits: 3},
		{Code: "PH101", Title: "Engineering Physics", Department: "Physics", Credits: 3},
	}
	if err := db.CreateInBatches(courses, 100).Error; err != nil {
		log.Fatal("Failed to seed courses:", err)
	}

	year := time.Now().Year()
	terms := []models.AcademicTerm{
		{Year: year, Semester: "odd", StartsOn: time.Date(year, 7, 1, 0, 0, 0, 0, time.UTC)},
		{Year: year, Semester: "even", StartsOn: time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	if err := db.CreateInBatches(terms, 100).Error; err != nil {
		log.Fatal("Failed to seed terms:", err)
	}

	log.Printf("Seeded %d component types, %d courses, %d terms",
		len(componentTypes), len(courses), len(terms))
}
