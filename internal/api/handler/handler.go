package handler

import (
	"log/slog"

	"github.com/terrafusion/import-service/internal/audit"
	"github.com/terrafusion/import-service/internal/job"
	"github.com/terrafusion/import-service/internal/pipeline/correct"
	"github.com/terrafusion/import-service/shared/postgresql"
	"github.com/terrafusion/import-service/shared/rabbitmq"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Manager      *job.Manager
	Dispatcher   *job.Dispatcher
	AuditLog     audit.Log
	Corrector    correct.Corrector
	DBClient     *postgresql.Client // nil when audit persistence is disabled
	RabbitClient *rabbitmq.Client
	ServiceName  string
}

// ImportHandler handles import job HTTP requests
type ImportHandler struct {
	logger     *slog.Logger
	manager    *job.Manager
	dispatcher *job.Dispatcher
	auditLog   audit.Log
}

// NewImportHandler creates a new ImportHandler instance
func NewImportHandler(deps *Dependencies) *ImportHandler {
	return &ImportHandler{
		logger:     deps.Logger,
		manager:    deps.Manager,
		dispatcher: deps.Dispatcher,
		auditLog:   deps.AuditLog,
	}
}

// RecordHandler handles standalone record validation and correction
type RecordHandler struct {
	logger    *slog.Logger
	corrector correct.Corrector
}

// NewRecordHandler creates a new RecordHandler instance
func NewRecordHandler(deps *Dependencies) *RecordHandler {
	return &RecordHandler{
		logger:    deps.Logger,
		corrector: deps.Corrector,
	}
}
