package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/cppla/inkwell/models"
)

// StatsService aggregates dashboard counters.
type StatsService struct {
	db *gorm.DB
}

// Dashboard is the admin overview.
type Dashboard struct {
	Users               map[string]int64 `json:"users"`
	Articles            map[string]int64 `json:"articles"`
	Comments            map[string]int64 `json:"comments"`
	ReportedArticles    int64            `json:"reported_articles"`
	ReportedComments    int64            `json:"reported_comments"`
	VerifiedSubscribers int64            `json:"verified_subscribers"`
	Media               int64            `json:"media"`
}

type statusCount struct {
	Status string
	N      int64
}

// Dashboard counts users, articles and comments by status plus subscribers and media.
func (s *StatsService) Dashboard(ctx context.Context) (*Dashboard, error) {
	db := s.db.WithContext(ctx)
	d := &Dashboard{}
	var err error
	if d.Users, err = countByStatus(db.Model(&models.User{})); err != nil {
		return nil, Internal(err)
	}
	if d.Articles, err = countByStatus(db.Model(&models.Article{})); err != nil {
		return nil, Internal(err)
	}
	if d.Comments, err = countByStatus(db.Model(&models.Comment{}).Where("deleted_at IS NULL")); err != nil {
		return nil, Internal(err)
	}
	counts := []struct {
		q   *gorm.DB
		dst *int64
	}{
		{db.Model(&models.Article{}).Where("report_count > 0"), &d.ReportedArticles},
		{db.Model(&models.Comment{}).Where("report_count > 0 AND deleted_at IS NULL"), &d.ReportedComments},
		{db.Model(&models.NewsletterSubscriber{}).Where("is_verified = ?", true), &d.VerifiedSubscribers},
		{db.Model(&models.Media{}), &d.Media},
	}
	for _, c := range counts {
		if err := c.q.Count(c.dst).Error; err != nil {
			return nil, Internal(err)
		}
	}
	return d, nil
}

func countByStatus(q *gorm.DB) (map[string]int64, error) {
	var rows []statusCount
	if err := q.Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
