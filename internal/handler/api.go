package handler

import (
	"github.com/pacelog/internal/logger"
	"github.com/pacelog/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db           *gorm.DB
	log          *logger.Logger
	catalog      *service.CatalogService
	enrollments  *service.EnrollmentService
	expander     *service.ExpansionService
	lessons      *service.LessonService
	presentation *service.PresentationService
	responses    *service.ResponseService
	adherence    *service.AdherenceService
	deferrals    *service.DeferralService
	settings     *service.EngineSettingService
}

// NewAPI constructs a handler set with shared services.
func NewAPI(db *gorm.DB, log *logger.Logger) *API {
	responseService := service.NewResponseService(db, log)
	settingService := service.NewEngineSettingService(db)
	expansionService := service.NewExpansionService(db, log)
	lessonService := service.NewLessonService(db, log)

	return &API{
		db:           db,
		log:          log,
		catalog:      service.NewCatalogService(db),
		enrollments:  service.NewEnrollmentService(db, expansionService, lessonService, log),
		expander:     expansionService,
		lessons:      lessonService,
		presentation: service.NewPresentationService(db, responseService, settingService, log),
		responses:    responseService,
		adherence:    service.NewAdherenceService(db, responseService),
		deferrals:    service.NewDeferralService(db, lessonService, log),
		settings:     settingService,
	}
}

// DB exposes the underlying gorm instance for tests.
func (a *API) DB() *gorm.DB {
	return a.db
}
