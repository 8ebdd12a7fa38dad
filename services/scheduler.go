package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/inkwell/utils"
)

// StartScheduler promotes due scheduled articles every interval until ctx is done.
func StartScheduler(ctx context.Context, articles *ArticleService, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		runPublishDue(ctx, articles)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runPublishDue(ctx, articles)
			}
		}
	}()
}

func runPublishDue(ctx context.Context, articles *ArticleService) {
	ids, err := articles.PublishDue(ctx)
	if err != nil {
		utils.Logger.Error("scheduled publish failed", zap.Error(err))
	}
	if len(ids) > 0 {
		utils.Logger.Info("scheduled articles published", zap.Uints("ids", ids))
	}
}
