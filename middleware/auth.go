package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

const (
	// ContextUserKey stores the authenticated *models.User.
	ContextUserKey = "current_user"
	// ContextTokenKey stores the *models.AccessToken the request was authenticated with.
	ContextTokenKey = "current_token"
)

// AuthRequired ensures the request carries a live bearer token with the given ability.
func AuthRequired(tokens *services.TokenService, ability string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		raw, msg := BearerToken(ctx)
		if msg != "" {
			utils.Error(ctx, http.StatusUnauthorized, msg, nil)
			ctx.Abort()
			return
		}
		user, tok, err := tokens.Authenticate(ctx.Request.Context(), raw, ability)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, authFailureMessage(err), nil)
			ctx.Abort()
			return
		}
		setIdentity(ctx, user, tok)
		ctx.Next()
	}
}

// OptionalAuth attaches the user when a valid access token is present and continues anonymously otherwise.
func OptionalAuth(tokens *services.TokenService) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if raw, msg := BearerToken(ctx); msg == "" {
			if user, tok, err := tokens.Authenticate(ctx.Request.Context(), raw, utils.AbilityAccessAPI); err == nil {
				setIdentity(ctx, user, tok)
			}
		}
		ctx.Next()
	}
}

// RequirePermission rejects authenticated users lacking perm. It must run after AuthRequired.
func RequirePermission(authz *services.Authorizer, perm string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user := CurrentUser(ctx)
		if user == nil {
			utils.Error(ctx, http.StatusUnauthorized, "authentication required", nil)
			ctx.Abort()
			return
		}
		if !authz.Can(ctx.Request.Context(), user, perm) {
			utils.Error(ctx, http.StatusForbidden, "forbidden", nil)
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(ctx *gin.Context) *models.User {
	if v, ok := ctx.Get(ContextUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

// CurrentToken returns the access token of the request or nil.
func CurrentToken(ctx *gin.Context) *models.AccessToken {
	if v, ok := ctx.Get(ContextTokenKey); ok {
		if t, ok := v.(*models.AccessToken); ok {
			return t
		}
	}
	return nil
}

// BearerToken extracts the raw token from the Authorization header, or a reason it is unusable.
func BearerToken(ctx *gin.Context) (string, string) {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		return "", "authorization header missing"
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "invalid authorization header format"
	}
	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return "", "empty bearer token"
	}
	return tokenString, ""
}

// authFailureMessage is the client-facing text of an authentication error.
func authFailureMessage(err error) string {
	var se *services.Error
	if errors.As(err, &se) && se.Kind == services.KindUnauthorized && se.Message != "" {
		return se.Message
	}
	return "invalid token"
}

func setIdentity(ctx *gin.Context, user *models.User, tok *models.AccessToken) {
	ctx.Set(ContextUserKey, user)
	ctx.Set(ContextTokenKey, tok)
	ctx.Set(utils.ContextUserIDKey, user.ID)
}
