package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/utils"
)

// Actor identifies who reacts to an article: a signed-in user or an anonymous visitor by IP.
type Actor interface {
	key() string
	columns() (*uint, *string)
}

// UserActor is an authenticated reactor.
type UserActor struct{ UserID uint }

// AnonymousActor is an unauthenticated reactor identified by client IP.
type AnonymousActor struct{ IP string }

func (a UserActor) key() string               { return fmt.Sprintf("user:%d", a.UserID) }
func (a UserActor) columns() (*uint, *string) { return uintPtr(a.UserID), nil }

func (a AnonymousActor) key() string { return "ip:" + a.IP }
func (a AnonymousActor) columns() (*uint, *string) {
	ip := a.IP
	return nil, &ip
}

// ActorFor picks the user actor when user is set, the anonymous actor otherwise.
func ActorFor(user *models.User, ip string) Actor {
	if user != nil && user.ID != 0 {
		return UserActor{UserID: user.ID}
	}
	return AnonymousActor{IP: strings.TrimSpace(ip)}
}

// Reaction kinds.
const (
	ReactionLike    = "like"
	ReactionDislike = "dislike"
)

// ReactionResult reports the reaction now held by the actor and fresh totals.
type ReactionResult struct {
	Reaction      string `json:"reaction"`
	Created       bool   `json:"created"`
	ID            uint   `json:"id"`
	LikesCount    int64  `json:"likes_count"`
	DislikesCount int64  `json:"dislikes_count"`
}

var errAlreadyReacted = errors.New("already reacted")

// ReactionService is the engagement ledger: at most one like or dislike per actor per article.
type ReactionService struct {
	db     *gorm.DB
	authz  *Authorizer
	events *Dispatcher
	locks  *utils.KeyedLock
}

// Like records a like, replacing a dislike by the same actor. Liking twice is a no-op.
func (s *ReactionService) Like(ctx context.Context, articleSlug string, actor Actor) (*ReactionResult, error) {
	return s.react(ctx, articleSlug, actor, ReactionLike)
}

// Dislike records a dislike, replacing a like by the same actor.
func (s *ReactionService) Dislike(ctx context.Context, articleSlug string, actor Actor) (*ReactionResult, error) {
	return s.react(ctx, articleSlug, actor, ReactionDislike)
}

func (s *ReactionService) react(ctx context.Context, articleSlug string, actor Actor, kind string) (*ReactionResult, error) {
	userID, ip := actor.columns()
	if userID == nil && (ip == nil || *ip == "") {
		return nil, Validation("invalid actor", map[string]string{"actor": models.ErrInvalidReactionActor.Error()})
	}
	if userID != nil {
		perm := PermLikePosts
		if kind == ReactionDislike {
			perm = PermDislikePosts
		}
		if err := s.authz.Require(ctx, &models.User{ID: *userID}, perm); err != nil {
			return nil, err
		}
	}

	var article models.Article
	if err := s.db.WithContext(ctx).Where("slug = ?", articleSlug).First(&article).Error; err != nil {
		return nil, notFoundOr(err, "article not found")
	}

	unlock := s.locks.Lock(fmt.Sprintf("reaction:%d:%s", article.ID, actor.key()))
	defer unlock()

	row, opposite := newReactionRows(kind, article.ID, userID, ip)
	if err := row.Validate(); err != nil {
		return nil, Validation("invalid actor", map[string]string{"actor": err.Error()})
	}

	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Article
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, article.ID).Error; err != nil {
			return notFoundOr(err, "article not found")
		}
		if locked.Status != models.ArticlePublished {
			return Conflict("only published articles can receive reactions")
		}
		var n int64
		if err := actorScope(tx.Model(row), article.ID, userID, ip).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return errAlreadyReacted
		}
		if err := actorScope(tx, article.ID, userID, ip).Delete(opposite).Error; err != nil {
			return err
		}
		if err := tx.Create(row).Error; err != nil {
			if isDuplicate(err) {
				return errAlreadyReacted
			}
			return err
		}
		created = true
		return nil
	})
	if err != nil && !errors.Is(err, errAlreadyReacted) {
		return nil, Internal(err)
	}

	res := &ReactionResult{Reaction: kind, Created: created}
	var existing struct{ ID uint }
	if err := actorScope(s.db.WithContext(ctx).Model(row), article.ID, userID, ip).Select("id").Take(&existing).Error; err != nil {
		return nil, notFoundOr(err, "reaction not found")
	}
	res.ID = existing.ID
	if err := s.db.WithContext(ctx).Model(&models.ArticleLike{}).Where("article_id = ?", article.ID).Count(&res.LikesCount).Error; err != nil {
		return nil, Internal(err)
	}
	if err := s.db.WithContext(ctx).Model(&models.ArticleDislike{}).Where("article_id = ?", article.ID).Count(&res.DislikesCount).Error; err != nil {
		return nil, Internal(err)
	}

	if created {
		name := EventArticleLiked
		if kind == ReactionDislike {
			name = EventArticleDisliked
		}
		var actorID uint
		if userID != nil {
			actorID = *userID
		}
		s.events.Dispatch(Event{Name: name, SubjectID: article.ID, ActorID: actorID})
	}
	return res, nil
}

type reactionRow interface {
	Validate() error
}

func newReactionRows(kind string, articleID uint, userID *uint, ip *string) (reactionRow, interface{}) {
	if kind == ReactionDislike {
		return &models.ArticleDislike{ArticleID: articleID, UserID: userID, IPAddress: ip}, &models.ArticleLike{}
	}
	return &models.ArticleLike{ArticleID: articleID, UserID: userID, IPAddress: ip}, &models.ArticleDislike{}
}

func actorScope(q *gorm.DB, articleID uint, userID *uint, ip *string) *gorm.DB {
	q = q.Where("article_id = ?", articleID)
	if userID != nil {
		return q.Where("user_id = ?", *userID)
	}
	return q.Where("ip_address = ? AND user_id IS NULL", *ip)
}
