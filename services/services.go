package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/cppla/inkwell/utils"
)

// Options configures the service container. Zero values get sensible defaults.
type Options struct {
	Cache   utils.Cache
	Mailer  utils.Mailer
	Storage Storage
	// Now is the clock used for every timestamp decision.
	Now func() time.Time

	JWTSecret          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	NewsletterTokenTTL time.Duration
	PasswordResetTTL   time.Duration
	AppURL             string

	EventWorkers   int
	EventQueueSize int
}

// Services is the domain layer shared by controllers and background jobs.
type Services struct {
	DB            *gorm.DB
	Cache         utils.Cache
	Events        *Dispatcher
	Permissions   *PermissionStore
	Authz         *Authorizer
	Tokens        *TokenService
	Users         *UserService
	Articles      *ArticleService
	Comments      *CommentService
	Reactions     *ReactionService
	Media         *MediaService
	Newsletter    *NewsletterService
	Notifications *NotificationService
	Taxonomy      *TaxonomyService
	Stats         *StatsService
}

// New builds every service on db and attaches the default event listeners.
func New(db *gorm.DB, opts Options) *Services {
	if opts.Cache == nil {
		opts.Cache = utils.NewMemoryCache()
	}
	if opts.Mailer == nil {
		opts.Mailer = utils.NewMailer(utils.SMTPConfig{})
	}
	if opts.Storage == nil {
		opts.Storage = NewLocalStorage("static/uploads", "/static/uploads")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AccessTokenTTL <= 0 {
		opts.AccessTokenTTL = 24 * time.Hour
	}
	if opts.RefreshTokenTTL <= 0 {
		opts.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if opts.NewsletterTokenTTL <= 0 {
		opts.NewsletterTokenTTL = 24 * time.Hour
	}
	if opts.PasswordResetTTL <= 0 {
		opts.PasswordResetTTL = time.Hour
	}

	s := &Services{DB: db, Cache: opts.Cache}
	s.Events = NewDispatcher(opts.EventWorkers, opts.EventQueueSize)
	s.Permissions = NewPermissionStore(db, opts.Cache)
	s.Authz = NewAuthorizer(s.Permissions)
	s.Tokens = &TokenService{
		db:         db,
		blacklist:  utils.NewTokenBlacklist(opts.Cache),
		secret:     opts.JWTSecret,
		accessTTL:  opts.AccessTokenTTL,
		refreshTTL: opts.RefreshTokenTTL,
		now:        opts.Now,
	}
	s.Users = &UserService{
		db:       db,
		authz:    s.Authz,
		perms:    s.Permissions,
		tokens:   s.Tokens,
		events:   s.Events,
		mailer:   opts.Mailer,
		resetTTL: opts.PasswordResetTTL,
		appURL:   opts.AppURL,
		now:      opts.Now,
	}
	s.Articles = &ArticleService{db: db, authz: s.Authz, events: s.Events, cache: opts.Cache, now: opts.Now}
	s.Comments = &CommentService{db: db, authz: s.Authz, events: s.Events, now: opts.Now}
	s.Reactions = &ReactionService{db: db, authz: s.Authz, events: s.Events, locks: utils.NewKeyedLock(256)}
	s.Media = &MediaService{db: db, authz: s.Authz, events: s.Events, storage: opts.Storage, now: opts.Now}
	s.Newsletter = &NewsletterService{
		db:     db,
		authz:  s.Authz,
		events: s.Events,
		mailer: opts.Mailer,
		ttl:    opts.NewsletterTokenTTL,
		appURL: opts.AppURL,
		now:    opts.Now,
	}
	s.Notifications = &NotificationService{db: db, authz: s.Authz, events: s.Events, now: opts.Now}
	s.Taxonomy = &TaxonomyService{db: db, authz: s.Authz}
	s.Stats = &StatsService{db: db}

	s.Events.Subscribe(AllEvents, "audit-log", LogEvent)
	s.Events.Subscribe(EventNotificationCreated, "notification-fanout", s.Notifications.FanOut)
	s.Events.Subscribe(EventArticleApproved, "notify-author", s.Notifications.NotifyArticleAuthor)
	s.Events.Subscribe(EventArticleRejected, "notify-author", s.Notifications.NotifyArticleAuthor)
	s.Events.Subscribe(EventCommentCreated, "notify-author", s.Notifications.NotifyArticleAuthor)
	return s
}

// Close drains pending events and stops the dispatcher.
func (s *Services) Close() {
	s.Events.Close()
}

// Page is a 1-based pagination request.
type Page struct {
	Page     int
	PageSize int
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Normalize clamps page and size, using def when size is unset.
func (p Page) Normalize(def int) Page {
	if def <= 0 {
		def = defaultPageSize
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = def
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

func (p Page) Offset() int { return (p.Page - 1) * p.PageSize }

// publicProfile narrows a preloaded user to what anyone may see.
func publicProfile(db *gorm.DB) *gorm.DB {
	return db.Select("id", "name", "username", "avatar_url", "bio", "status", "created_at", "updated_at")
}

func uintPtr(v uint) *uint { return &v }

func timePtr(t time.Time) *time.Time { return &t }
