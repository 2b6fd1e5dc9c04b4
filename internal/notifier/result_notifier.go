package notifier

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PhillipSMartin/StJames/internal/domain/publishing"
	"github.com/PhillipSMartin/StJames/pkg/snowflake"
)

var publicationOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stjames_publication_results_total",
		Help: "Publication attempts by destination website and outcome.",
	},
	[]string{"website", "outcome"},
)

// ResultRecord is the durable, human-readable record of one publication
// attempt.
type ResultRecord struct {
	ID        int64  `gorm:"primaryKey"`
	Website   string `gorm:"type:varchar(50);not null;index"`
	Success   bool   `gorm:"not null"`
	Title     string `gorm:"type:text"`
	Reason    string `gorm:"type:text"`
	CreatedAt time.Time
}

func (ResultRecord) TableName() string {
	return "publication_results"
}

// ResultNotifier publishes one record per publication attempt, success or
// failure, for operator visibility.
type ResultNotifier struct {
	db     *gorm.DB
	node   *snowflake.Node
	logger *zap.Logger
}

func NewResultNotifier(db *gorm.DB, node *snowflake.Node, logger *zap.Logger) *ResultNotifier {
	return &ResultNotifier{
		db:     db,
		node:   node,
		logger: logger.Named("result.notifier"),
	}
}

func (n *ResultNotifier) Publish(ctx context.Context, result publishing.Result) error {
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	publicationOutcomes.WithLabelValues(string(result.Website), outcome).Inc()

	fields := []zap.Field{
		zap.String("website", string(result.Website)),
		zap.Bool("success", result.Success),
		zap.String("title", result.Title),
	}
	if result.Reason != "" {
		fields = append(fields, zap.String("reason", result.Reason))
	}
	if result.Success {
		n.logger.Info("publication_succeeded", fields...)
	} else {
		n.logger.Warn("publication_failed", fields...)
	}

	record := ResultRecord{
		ID:        n.node.GenerateID(),
		Website:   string(result.Website),
		Success:   result.Success,
		Title:     result.Title,
		Reason:    result.Reason,
		CreatedAt: time.Now().UTC(),
	}
	return n.db.WithContext(ctx).Create(&record).Error
}
