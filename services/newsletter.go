package services

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/utils"
)

const (
	tokenPurposeVerify      = "verify"
	tokenPurposeUnsubscribe = "unsubscribe"
)

// NewsletterService runs double opt-in subscription and confirmed unsubscription.
// Tokens are stored hashed and only ever leave the server by mail.
type NewsletterService struct {
	db     *gorm.DB
	authz  *Authorizer
	events *Dispatcher
	mailer utils.Mailer
	ttl    time.Duration
	appURL string
	now    func() time.Time
}

func normalizeEmail(email string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(e); err != nil || e == "" {
		return "", Validation("invalid email", map[string]string{"email": "must be a valid email address"})
	}
	return e, nil
}

// Subscribe registers email (linking user when signed in) and mails a verification token.
func (s *NewsletterService) Subscribe(ctx context.Context, user *models.User, email string) (*models.NewsletterSubscriber, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if err := s.authz.Require(ctx, user, PermSubscribeNewsletter); err != nil {
			return nil, err
		}
	}
	var sub models.NewsletterSubscriber
	err = s.db.WithContext(ctx).Where("email = ?", email).First(&sub).Error
	switch {
	case err == nil:
		if sub.Active() {
			return nil, Conflict("email is already subscribed")
		}
	case isNotFound(err):
		sub = models.NewsletterSubscriber{Email: email}
	default:
		return nil, Internal(err)
	}
	if user != nil && sub.UserID == nil {
		sub.UserID = uintPtr(user.ID)
	}
	if err := s.issueToken(ctx, &sub, tokenPurposeVerify); err != nil {
		return nil, err
	}
	s.events.Dispatch(Event{Name: EventNewsletterSubscribed, SubjectID: sub.ID, ActorID: actorID(user)})
	return &sub, nil
}

// Verify confirms a subscription. A wrong email or token is NotFound, an expired token a Conflict;
// neither changes stored state.
func (s *NewsletterService) Verify(ctx context.Context, email, token string) (*models.NewsletterSubscriber, error) {
	sub, err := s.consume(ctx, email, token, tokenPurposeVerify, func(sub *models.NewsletterSubscriber) map[string]interface{} {
		return map[string]interface{}{
			"is_verified":     true,
			"subscribed_at":   s.now(),
			"unsubscribed_at": nil,
		}
	})
	if err != nil {
		return nil, err
	}
	s.events.Dispatch(Event{Name: EventNewsletterVerified, SubjectID: sub.ID})
	return sub, nil
}

// RequestUnsubscribe mails an unsubscribe token to an active subscriber.
// Unknown or inactive emails succeed silently.
func (s *NewsletterService) RequestUnsubscribe(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	var sub models.NewsletterSubscriber
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&sub).Error; err != nil {
		if isNotFound(err) {
			return nil
		}
		return Internal(err)
	}
	if !sub.Active() {
		return nil
	}
	return s.issueToken(ctx, &sub, tokenPurposeUnsubscribe)
}

// ConfirmUnsubscribe ends a subscription with the mailed token.
func (s *NewsletterService) ConfirmUnsubscribe(ctx context.Context, email, token string) (*models.NewsletterSubscriber, error) {
	sub, err := s.consume(ctx, email, token, tokenPurposeUnsubscribe, func(sub *models.NewsletterSubscriber) map[string]interface{} {
		return map[string]interface{}{
			"is_verified":     false,
			"unsubscribed_at": s.now(),
		}
	})
	if err != nil {
		return nil, err
	}
	s.events.Dispatch(Event{Name: EventNewsletterUnsubscribed, SubjectID: sub.ID})
	return sub, nil
}

func (s *NewsletterService) consume(ctx context.Context, email, token, purpose string, apply func(*models.NewsletterSubscriber) map[string]interface{}) (*models.NewsletterSubscriber, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	token = strings.TrimSpace(token)
	var sub models.NewsletterSubscriber
	if email == "" || token == "" {
		return nil, NotFound("invalid token")
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ?", email).First(&sub).Error; err != nil {
			return notFoundOr(err, "invalid token")
		}
		if sub.VerificationToken == "" || sub.TokenPurpose != purpose || sub.VerificationToken != utils.HashToken(token) {
			return NotFound("invalid token")
		}
		if sub.TokenExpiresAt == nil || !s.now().Before(*sub.TokenExpiresAt) {
			return Conflict("token expired")
		}
		updates := apply(&sub)
		updates["verification_token"] = ""
		updates["token_purpose"] = ""
		updates["token_expires_at"] = nil
		res := tx.Model(&models.NewsletterSubscriber{}).
			Where("id = ? AND verification_token = ?", sub.ID, sub.VerificationToken).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return NotFound("invalid token")
		}
		return nil
	})
	if err != nil {
		return nil, Internal(err)
	}
	if err := s.db.WithContext(ctx).First(&sub, sub.ID).Error; err != nil {
		return nil, Internal(err)
	}
	return &sub, nil
}

func (s *NewsletterService) issueToken(ctx context.Context, sub *models.NewsletterSubscriber, purpose string) error {
	raw, err := utils.RandomToken(32)
	if err != nil {
		return Internal(err)
	}
	exp := s.now().Add(s.ttl)
	sub.VerificationToken = utils.HashToken(raw)
	sub.TokenPurpose = purpose
	sub.TokenExpiresAt = &exp
	if err := s.db.WithContext(ctx).Save(sub).Error; err != nil {
		return Internal(err)
	}

	minutes := int(s.ttl.Minutes())
	q := url.Values{"email": {sub.Email}, "token": {raw}}.Encode()
	var subject, body string
	if purpose == tokenPurposeVerify {
		subject = "Confirm your newsletter subscription"
		body = fmt.Sprintf("Confirm your subscription: %s/newsletter/verify?%s\nToken: %s\nThe link expires in %d minutes.", s.appURL, q, raw, minutes)
	} else {
		subject = "Confirm your newsletter unsubscription"
		body = fmt.Sprintf("Confirm you want to unsubscribe: %s/newsletter/unsubscribe?%s\nToken: %s\nThe link expires in %d minutes.", s.appURL, q, raw, minutes)
	}
	if err := s.mailer.Send(sub.Email, subject, body); err != nil {
		utils.Sugar.Warnw("newsletter mail failed", "email", sub.Email, "purpose", purpose, "error", err)
		return Internal(err)
	}
	return nil
}

// SubscriberFilter narrows the admin list.
type SubscriberFilter struct {
	Verified *bool
	Search   string
}

// List returns subscribers for administrators.
func (s *NewsletterService) List(ctx context.Context, actor *models.User, f SubscriberFilter, p Page) ([]models.NewsletterSubscriber, int64, error) {
	if err := s.authz.Require(ctx, actor, PermViewSubscribers); err != nil {
		return nil, 0, err
	}
	p = p.Normalize(20)
	q := s.db.WithContext(ctx).Model(&models.NewsletterSubscriber{})
	if f.Verified != nil {
		q = q.Where("is_verified = ?", *f.Verified)
	}
	if f.Search != "" {
		q = q.Where("email LIKE ?", "%"+f.Search+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Internal(err)
	}
	var items []models.NewsletterSubscriber
	if err := q.Order("created_at DESC").Offset(p.Offset()).Limit(p.PageSize).Find(&items).Error; err != nil {
		return nil, 0, Internal(err)
	}
	return items, total, nil
}

// Delete removes a subscriber record.
func (s *NewsletterService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if err := s.authz.Require(ctx, actor, PermDeleteSubscribers); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Delete(&models.NewsletterSubscriber{}, id)
	if res.Error != nil {
		return Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return NotFound("subscriber not found")
	}
	return nil
}

func actorID(u *models.User) uint {
	if u == nil {
		return 0
	}
	return u.ID
}
