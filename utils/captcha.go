package utils

import (
	"context"
	"time"

	"github.com/mojocn/base64Captcha"
)

const captchaTTL = 10 * time.Minute

// cacheCaptchaStore implements base64Captcha.Store on top of Cache so answers survive
// across instances when Redis is configured.
type cacheCaptchaStore struct {
	cache Cache
}

func (s *cacheCaptchaStore) key(id string) string {
	return "captcha:" + id
}

func (s *cacheCaptchaStore) Set(id string, value string) error {
	return s.cache.Set(context.Background(), s.key(id), []byte(value), captchaTTL)
}

func (s *cacheCaptchaStore) Get(id string, clear bool) string {
	var (
		v  []byte
		ok bool
	)
	if clear {
		v, ok = s.cache.GetDel(context.Background(), s.key(id))
	} else {
		v, ok = s.cache.Get(context.Background(), s.key(id))
	}
	if !ok {
		return ""
	}
	return string(v)
}

func (s *cacheCaptchaStore) Verify(id, answer string, clear bool) bool {
	v := s.Get(id, clear)
	return v != "" && v == answer
}

// Captcha issues digit captchas for registration.
type Captcha struct {
	store base64Captcha.Store
}

func NewCaptcha(c Cache) *Captcha {
	return &Captcha{store: &cacheCaptchaStore{cache: c}}
}

// Generate creates a captcha and returns (id, dataURI) for frontend to display.
func (c *Captcha) Generate() (string, string, error) {
	driver := base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
	id, b64, _, err := base64Captcha.NewCaptcha(driver, c.store).Generate()
	return id, b64, err
}

// Verify checks the answer and consumes the captcha.
func (c *Captcha) Verify(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return c.store.Verify(id, answer, true)
}
