package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/cppla/inkwell/config"
	"github.com/cppla/inkwell/middleware"
	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

const oauthStateTTL = 10 * time.Minute

// AuthController handles local accounts, tokens and third-party providers.
type AuthController struct {
	svc     *services.Services
	cfg     config.AppConfig
	captcha *utils.Captcha
	guard   *utils.RegistrationGuard
}

// NewAuthController creates an AuthController.
func NewAuthController(svc *services.Services, cfg config.AppConfig) *AuthController {
	return &AuthController{
		svc:     svc,
		cfg:     cfg,
		captcha: utils.NewCaptcha(svc.Cache),
		guard: utils.NewRegistrationGuard(svc.Cache,
			time.Duration(cfg.RegisterCooldownSeconds)*time.Second,
			cfg.RegisterMaxPerIPPerDay,
			cfg.RegisterFailMaxPerHour,
			time.Duration(cfg.RegisterTempBanMinutes)*time.Minute,
		),
	}
}

// Register handles local account registration.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Name                 string `json:"name" binding:"max=120"`
		Username             string `json:"username" binding:"max=64"`
		Email                string `json:"email" binding:"required,email,max=191"`
		Password             string `json:"password" binding:"required,min=8,max=72"`
		PasswordConfirmation string `json:"password_confirmation" binding:"required,eqfield=Password"`
		CaptchaID            string `json:"captcha_id"`
		CaptchaAnswer        string `json:"captcha_answer"`
	}
	if !bind(ctx, &req) {
		return
	}

	ip := ctx.ClientIP()
	if ok, reason := a.guard.Allow(ctx.Request.Context(), ip); !ok {
		utils.Error(ctx, http.StatusTooManyRequests, reason, nil)
		return
	}
	if a.cfg.RegisterCaptchaEnabled && !a.captcha.Verify(strings.TrimSpace(req.CaptchaID), strings.TrimSpace(req.CaptchaAnswer)) {
		utils.Error(ctx, http.StatusUnprocessableEntity, "validation failed", gin.H{"captcha_answer": "is incorrect or expired"})
		return
	}

	user, err := a.svc.Users.Register(ctx.Request.Context(), services.RegisterInput{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if k := services.KindOf(err); k == services.KindValidation || k == services.KindConflict {
			a.guard.RecordFailure(ctx.Request.Context(), ip)
		}
		respondError(ctx, err)
		return
	}
	a.guard.RecordSuccess(ctx.Request.Context(), ip)
	pair, err := a.svc.Tokens.IssuePair(ctx.Request.Context(), user.ID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, gin.H{"user": user, "tokens": pair})
}

// Captcha returns a fresh captcha id and base64 image (data URI).
func (a *AuthController) Captcha(ctx *gin.Context) {
	id, b64, err := a.captcha.Generate()
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"id": id, "image": b64})
}

// Login verifies credentials and issues an access/refresh pair.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if !bind(ctx, &req) {
		return
	}
	user, pair, err := a.svc.Users.Login(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"user": user, "tokens": pair})
}

// Refresh rotates a refresh token into a new pair.
func (a *AuthController) Refresh(ctx *gin.Context) {
	raw, msg := middleware.BearerToken(ctx)
	if msg != "" {
		utils.Error(ctx, http.StatusUnauthorized, msg, nil)
		return
	}
	pair, err := a.svc.Tokens.Refresh(ctx.Request.Context(), raw)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"tokens": pair})
}

// Logout revokes the token the request was made with.
func (a *AuthController) Logout(ctx *gin.Context) {
	tok := middleware.CurrentToken(ctx)
	if tok == nil {
		utils.Error(ctx, http.StatusUnauthorized, "authentication required", nil)
		return
	}
	if err := a.svc.Tokens.Revoke(ctx.Request.Context(), tok.TokenID); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "logged out", nil)
}

// Me returns the caller with roles and effective permissions.
func (a *AuthController) Me(ctx *gin.Context) {
	user, err := a.svc.Users.Get(ctx.Request.Context(), currentUser(ctx).ID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	set, err := a.svc.Permissions.PermissionsForUser(ctx.Request.Context(), user.ID)
	if err != nil {
		respondError(ctx, services.Internal(err))
		return
	}
	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	utils.Success(ctx, gin.H{"user": user, "permissions": perms})
}

// UpdateProfile edits the caller's own profile fields.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	var req struct {
		Name      *string `json:"name" binding:"omitempty,max=120"`
		Username  *string `json:"username" binding:"omitempty,min=2,max=64"`
		Bio       *string `json:"bio" binding:"omitempty,max=2000"`
		AvatarURL *string `json:"avatar_url" binding:"omitempty,url,max=512"`
	}
	if !bind(ctx, &req) {
		return
	}
	user, err := a.svc.Users.UpdateProfile(ctx.Request.Context(), currentUser(ctx), services.ProfileInput{
		Name:      req.Name,
		Username:  req.Username,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, user)
}

// ChangePassword replaces the password and signs out every other session.
func (a *AuthController) ChangePassword(ctx *gin.Context) {
	var req struct {
		CurrentPassword      string `json:"current_password"`
		Password             string `json:"password" binding:"required,min=8,max=72"`
		PasswordConfirmation string `json:"password_confirmation" binding:"required,eqfield=Password"`
	}
	if !bind(ctx, &req) {
		return
	}
	var keep string
	if tok := middleware.CurrentToken(ctx); tok != nil {
		keep = tok.TokenID
	}
	if err := a.svc.Users.ChangePassword(ctx.Request.Context(), currentUser(ctx), req.CurrentPassword, req.Password, keep); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "password updated", nil)
}

// ForgotPassword mails a reset link; the answer is the same whether the account exists or not.
func (a *AuthController) ForgotPassword(ctx *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if !bind(ctx, &req) {
		return
	}
	if err := a.svc.Users.ForgotPassword(ctx.Request.Context(), req.Email); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "if the account exists a reset link has been sent", nil)
}

// ResetPassword consumes a mailed reset token.
func (a *AuthController) ResetPassword(ctx *gin.Context) {
	var req struct {
		Email                string `json:"email" binding:"required,email"`
		Token                string `json:"token" binding:"required"`
		Password             string `json:"password" binding:"required,min=8,max=72"`
		PasswordConfirmation string `json:"password_confirmation" binding:"required,eqfield=Password"`
	}
	if !bind(ctx, &req) {
		return
	}
	if err := a.svc.Users.ResetPassword(ctx.Request.Context(), req.Email, req.Token, req.Password); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "password has been reset", nil)
}

// OAuthRedirect generates a provider-specific authorization URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	cfg, err := a.oauthConfig(ctx.Param("provider"))
	if err != nil {
		utils.Error(ctx, http.StatusNotFound, err.Error(), nil)
		return
	}

	state := uuid.NewString()
	utils.SaveState(ctx.Request.Context(), a.svc.Cache, state, oauthStateTTL)

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	utils.Success(ctx, gin.H{"authorization_url": url, "state": state})
}

// OAuthCallback exchanges the authorization code for a user identity and issues tokens.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	code := ctx.Query("code")
	state := ctx.Query("state")

	if code == "" || state == "" {
		utils.Error(ctx, http.StatusUnprocessableEntity, "missing code or state", nil)
		return
	}
	if !utils.ConsumeState(ctx.Request.Context(), a.svc.Cache, state) {
		utils.Error(ctx, http.StatusUnauthorized, "invalid or expired state", nil)
		return
	}

	cfg, err := a.oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusNotFound, err.Error(), nil)
		return
	}

	exchangeCtx, cancel := context.WithTimeout(ctx.Request.Context(), 15*time.Second)
	defer cancel()
	token, err := cfg.Exchange(exchangeCtx, code)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, "failed to exchange code", nil)
		return
	}

	identity, err := fetchOAuthUser(exchangeCtx, provider, token)
	if err != nil {
		respondError(ctx, err)
		return
	}

	user, pair, err := a.svc.Users.OAuthLogin(ctx.Request.Context(), *identity)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"user": user, "tokens": pair})
}

func (a *AuthController) oauthConfig(provider string) (*oauth2.Config, error) {
	switch strings.ToLower(provider) {
	case "github":
		if a.cfg.GitHubClientID == "" || a.cfg.GitHubClientSecret == "" {
			return nil, fmt.Errorf("github oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     a.cfg.GitHubClientID,
			ClientSecret: a.cfg.GitHubClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/github/callback", a.cfg.OAuthRedirectBase),
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if a.cfg.GoogleClientID == "" || a.cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     a.cfg.GoogleClientID,
			ClientSecret: a.cfg.GoogleClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/v1/auth/oauth/google/callback", a.cfg.OAuthRedirectBase),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func fetchOAuthUser(ctx context.Context, provider string, token *oauth2.Token) (*services.OAuthIdentity, error) {
	switch provider {
	case "github":
		return fetchGitHubUser(ctx, token)
	case "google":
		return fetchGoogleUser(ctx, token)
	default:
		return nil, services.NotFound("unsupported provider")
	}
}

func getJSON(ctx context.Context, url, accessToken string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func fetchGitHubUser(ctx context.Context, token *oauth2.Token) (*services.OAuthIdentity, error) {
	var payload struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, "https://api.github.com/user", token.AccessToken, &payload); err != nil {
		return nil, services.Internal(err)
	}

	email := payload.Email
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, "https://api.github.com/user/emails", token.AccessToken, &emails); err == nil {
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}

	return &services.OAuthIdentity{
		Provider:  "github",
		ID:        fmt.Sprintf("%d", payload.ID),
		Username:  payload.Login,
		Name:      fallback(payload.Name, payload.Login),
		Email:     email,
		AvatarURL: payload.AvatarURL,
	}, nil
}

func fetchGoogleUser(ctx context.Context, token *oauth2.Token) (*services.OAuthIdentity, error) {
	var payload struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := getJSON(ctx, "https://www.googleapis.com/oauth2/v2/userinfo", token.AccessToken, &payload); err != nil {
		return nil, services.Internal(err)
	}
	email := payload.Email
	if !payload.VerifiedEmail {
		email = ""
	}
	return &services.OAuthIdentity{
		Provider:  "google",
		ID:        payload.ID,
		Username:  strings.SplitN(payload.Email, "@", 2)[0],
		Name:      payload.Name,
		Email:     email,
		AvatarURL: payload.Picture,
	}, nil
}

func fallback(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
