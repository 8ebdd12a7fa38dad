package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cppla/inkwell/middleware"
	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

func init() {
	// Report validation failures by their json field name.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			switch name {
			case "-":
				return ""
			case "":
				return f.Name
			}
			return name
		})
	}
}

// respondError writes the envelope for a service error.
func respondError(ctx *gin.Context, err error) {
	var se *services.Error
	if !errors.As(err, &se) {
		se = &services.Error{Kind: services.KindInternal, Message: "internal server error", Err: err}
	}
	status := statusFor(se.Kind)
	if status == http.StatusInternalServerError {
		utils.Logger.Error("request failed",
			zap.String("path", ctx.FullPath()),
			zap.Error(err),
		)
		utils.Error(ctx, status, "internal server error", nil)
		return
	}
	var errObj interface{}
	if len(se.Fields) > 0 {
		errObj = se.Fields
	}
	utils.Error(ctx, status, se.Message, errObj)
}

func statusFor(k services.Kind) int {
	switch k {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindUnauthorized:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindValidation:
		return http.StatusUnprocessableEntity
	case services.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// bind decodes the JSON body into req, writing a 422 envelope on failure.
func bind(ctx *gin.Context, req interface{}) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		respondBindError(ctx, err)
		return false
	}
	return true
}

func respondBindError(ctx *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = describeRule(fe)
		}
		utils.Error(ctx, http.StatusUnprocessableEntity, "validation failed", fields)
		return
	}
	utils.Error(ctx, http.StatusUnprocessableEntity, "invalid request payload", gin.H{"body": err.Error()})
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "eqfield":
		return fmt.Sprintf("must match %s", strings.ToLower(fe.Param()))
	default:
		return "failed the " + fe.Tag() + " rule"
	}
}

func currentUser(ctx *gin.Context) *models.User {
	return middleware.CurrentUser(ctx)
}

func pageFrom(ctx *gin.Context) services.Page {
	page, _ := strconv.Atoi(ctx.Query("page"))
	size, _ := strconv.Atoi(ctx.Query("page_size"))
	return services.Page{Page: page, PageSize: size}
}

// paginated writes a page of items using the normalised page actually served.
func paginated(ctx *gin.Context, items interface{}, p services.Page, def int, total int64) {
	p = p.Normalize(def)
	utils.Success(ctx, utils.Paginated(items, p.Page, p.PageSize, total))
}

// parseID reads a positive integer path parameter, writing a 404 when malformed.
func parseID(ctx *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(ctx.Param(name)), 10, 64)
	if err != nil || n == 0 {
		utils.Error(ctx, http.StatusNotFound, "resource not found", nil)
		return 0, false
	}
	return uint(n), true
}

func queryBool(ctx *gin.Context, name string) *bool {
	v := strings.TrimSpace(ctx.Query(name))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}

func queryUint(ctx *gin.Context, name string) uint {
	n, _ := strconv.ParseUint(strings.TrimSpace(ctx.Query(name)), 10, 64)
	return uint(n)
}
