package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/middlewares"
	"bitbucket.org/mmhealthfocus/bbms_backend/models"
	"bitbucket.org/mmhealthfocus/bbms_backend/models/reports"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
	"bitbucket.org/mmhealthfocus/bbms_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func respondError(c *gin.Context, err error) {
	var validationErr *utils.ValidationError
	var eligibilityErr *utils.EligibilityError
	var stockErr *utils.InsufficientStockError
	var stateErr *utils.InvalidStateError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validationErr.Message,
			"field": validationErr.Field,
		})
	case errors.As(err, &eligibilityErr):
		body := gin.H{"error": eligibilityErr.Reason}
		if eligibilityErr.RemainingDays > 0 {
			body["remaining_days"] = eligibilityErr.RemainingDays
		}
		c.JSON(http.StatusUnprocessableEntity, body)
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":       stockErr.Error(),
			"blood_group": stockErr.GroupCode,
			"required":    stockErr.Required,
			"available":   stockErr.Available,
		})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	default:
		config.LogError(config.GetLogger(), "server", "respondError", c.FullPath(), nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func idParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func optionalQuery(c *gin.Context, name string) *string {
	value := c.Query(name)
	if value == "" {
		return nil
	}
	return &value
}

func optionalIntQuery(c *gin.Context, name string) *int {
	value := c.Query(name)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	return &n
}

func loginHandler() gin.HandlerFunc {
	type loginRequest struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}
		token, user, err := models.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			var validationErr *utils.ValidationError
			if errors.As(err, &validationErr) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": validationErr.Message})
				return
			}
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

func registerDonorRoutes(r *gin.RouterGroup) {
	r.GET("/donors", func(c *gin.Context) {
		results, err := models.GetDonors(c.Request.Context(), optionalQuery(c, "blood_group"), optionalQuery(c, "status"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
	r.POST("/donors", func(c *gin.Context) {
		var input models.NewDonor
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.GetValidationErrors(err)})
			return
		}
		donor, err := models.CreateDonor(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, donor)
	})
	r.GET("/donors/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		donor, err := models.GetDonor(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, donor)
	})
	r.PUT("/donors/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var input models.NewDonor
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.GetValidationErrors(err)})
			return
		}
		donor, err := models.UpdateDonor(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, donor)
	})
	r.DELETE("/donors/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		donor, deactivated, err := models.DeleteDonor(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"donor": donor, "deactivated": deactivated})
	})
	r.PUT("/donors/:id/status", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var req struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
			return
		}
		var status models.DonorStatus
		if err := status.Parse(req.Status); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid donor status"})
			return
		}
		donor, err := models.SetDonorStatus(c.Request.Context(), id, status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, donor)
	})
}

func registerDonationRoutes(r *gin.RouterGroup) {
	r.GET("/donations", func(c *gin.Context) {
		results, err := models.GetDonations(c.Request.Context(), optionalIntQuery(c, "donor_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
	r.POST("/donations", func(c *gin.Context) {
		var input models.NewDonation
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.GetValidationErrors(err)})
			return
		}
		donation, err := workflow.RecordDonation(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, donation)
	})
	r.GET("/donations/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		donation, err := models.GetDonation(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, donation)
	})
}

func registerPatientRoutes(r *gin.RouterGroup) {
	r.GET("/patients", func(c *gin.Context) {
		results, err := models.GetPatients(c.Request.Context(), optionalQuery(c, "blood_group"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
	r.POST("/patients", func(c *gin.Context) {
		var input models.NewPatient
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.GetValidationErrors(err)})
			return
		}
		patient, err := models.CreatePatient(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, patient)
	})
	r.GET("/patients/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		patient, err := models.GetPatient(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, patient)
	})
	r.PUT("/patients/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var input models.NewPatient
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.GetValidationErrors(err)})
			return
		}
		patient, err := models.UpdatePatient(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, patient)
	})
	r.DELETE("/patients/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		patient, err := models.DeletePatient(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, patient)
	})
}

func registerHospitalRoutes(r *gin.RouterGroup) {
	r.GET("/hospitals", func(c *gin.Context) {
		results, err := models.GetHospitals(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
	r.POST("/hospitals", func(c *gin.Context) {
		var input models.NewHospital
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.GetValidationErrors(err)})
			return
		}
		hospital, err := models.CreateHospital(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, hospital)
	})
	r.GET("/hospitals/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		hospital, err := models.GetHospital(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, hospital)
	})
	r.PUT("/hospitals/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var input models.NewHospital
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.GetValidationErrors(err)})
			return
		}
		hospital, err := models.UpdateHospital(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, hospital)
	})
	r.DELETE("/hospitals/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		hospital, deactivated, err := models.DeleteHospital(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"hospital": hospital, "deactivated": deactivated})
	})
}

func registerRequestRoutes(r *gin.RouterGroup) {
	r.GET("/requests", func(c *gin.Context) {
		results, err := models.GetBloodRequests(c.Request.Context(), optionalQuery(c, "status"), optionalQuery(c, "priority"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
	r.POST("/requests", func(c *gin.Context) {
		var input models.NewBloodRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.GetValidationErrors(err)})
			return
		}
		request, err := models.CreateBloodRequest(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, request)
	})
	r.GET("/requests/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		request, err := models.GetBloodRequest(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, request)
	})
	r.POST("/requests/:id/approve", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		request, err := models.ApproveBloodRequest(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, request)
	})
	r.POST("/requests/:id/reject", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		request, err := models.RejectBloodRequest(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, request)
	})
}

func registerIssueRoutes(r *gin.RouterGroup) {
	r.GET("/issues", func(c *gin.Context) {
		results, err := models.GetBloodIssues(c.Request.Context(), optionalIntQuery(c, "patient_id"), optionalQuery(c, "blood_group"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
	r.POST("/issues", func(c *gin.Context) {
		var input models.NewBloodIssue
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.GetValidationErrors(err)})
			return
		}
		issue, err := workflow.IssueBlood(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, issue)
	})
	r.GET("/issues/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		issue, err := models.GetBloodIssue(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, issue)
	})
}

func registerStockRoutes(r *gin.RouterGroup) {
	r.GET("/stock", func(c *gin.Context) {
		results, err := models.GetBloodStocks(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
	r.GET("/stock/:group", func(c *gin.Context) {
		stock, err := models.GetBloodStock(c.Request.Context(), c.Param("group"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stock)
	})
	r.PUT("/stock/:group", func(c *gin.Context) {
		var req struct {
			UnitsAvailable *int `json:"units_available" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.UnitsAvailable == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "units_available is required"})
			return
		}
		stock, err := models.CorrectBloodStock(c.Request.Context(), c.Param("group"), *req.UnitsAvailable)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stock)
	})
	r.POST("/stock/rebuild", func(c *gin.Context) {
		if err := workflow.RebuildBloodStocks(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
		results, err := models.GetBloodStocks(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
	r.GET("/blood-groups", func(c *gin.Context) {
		results, err := models.GetBloodGroups(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
}

func registerNotificationRoutes(r *gin.RouterGroup) {
	r.GET("/notifications", func(c *gin.Context) {
		limit := 50
		if n := optionalIntQuery(c, "limit"); n != nil && *n > 0 {
			limit = *n
		}
		results, err := models.GetUnreadNotifications(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
	r.GET("/notifications/count", func(c *gin.Context) {
		count, err := models.GetUnreadNotificationCount(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": count})
	})
	r.PUT("/notifications/:id/read", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		notification, err := models.MarkNotificationRead(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, notification)
	})
}

func registerDashboardRoutes(r *gin.RouterGroup) {
	r.GET("/dashboard", func(c *gin.Context) {
		summary, err := reports.GetDashboardSummary(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func registerActivityRoutes(r *gin.RouterGroup) {
	r.GET("/activity-logs", func(c *gin.Context) {
		limit := 100
		if n := optionalIntQuery(c, "limit"); n != nil && *n > 0 {
			limit = *n
		}
		results, err := models.GetActivityLogs(c.Request.Context(),
			optionalQuery(c, "action"), optionalQuery(c, "table"), optionalIntQuery(c, "user_id"), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP; until DB is ready app endpoints return 503.
	r := gin.New()
	r.Use(middlewares.RequestIdMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "X-Request-Id")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(gin.Recovery())

	r.POST("/login", loginHandler())

	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware())
	registerDonorRoutes(api)
	registerDonationRoutes(api)
	registerPatientRoutes(api)
	registerHospitalRoutes(api)
	registerRequestRoutes(api)
	registerIssueRoutes(api)
	registerStockRoutes(api)
	registerNotificationRoutes(api)
	registerDashboardRoutes(api)
	registerActivityRoutes(api)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	// AutoMigrate can run DDL that blocks tables; allow disabling on startup
	// and running migrations as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
		if err := models.SeedBloodGroups(); err != nil {
			logger.WithFields(logrus.Fields{"field": "seed"}).Panic(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}
