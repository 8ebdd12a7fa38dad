package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSONResponse is the envelope shared by every endpoint.
type JSONResponse struct {
	Status  bool        `json:"status"`
	Message *string     `json:"message"`
	Data    interface{} `json:"data"`
	Error   interface{} `json:"error"`
}

// Respond writes a JSON envelope with the given HTTP status.
func Respond(ctx *gin.Context, status int, ok bool, message string, data interface{}, errObj interface{}) {
	var msg *string
	if message != "" {
		msg = &message
	}
	ctx.JSON(status, JSONResponse{
		Status:  ok,
		Message: msg,
		Data:    data,
		Error:   errObj,
	})
}

// Success returns a 200 envelope carrying data.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusOK, true, "", data, nil)
}

// SuccessMessage returns a 200 envelope with a message.
func SuccessMessage(ctx *gin.Context, message string, data interface{}) {
	Respond(ctx, http.StatusOK, true, message, data, nil)
}

// Created returns a 201 envelope.
func Created(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusCreated, true, "", data, nil)
}

// Error returns a failed envelope. errObj may be nil.
func Error(ctx *gin.Context, status int, message string, errObj interface{}) {
	Respond(ctx, status, false, message, nil, errObj)
}

// Paginated wraps a page of items with its pagination block.
func Paginated(items interface{}, page, pageSize int, total int64) gin.H {
	return gin.H{
		"items": items,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	}
}
