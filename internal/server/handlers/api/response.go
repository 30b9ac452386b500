package api

import "github.com/gin-gonic/gin"

func AbortWithError(ctx *gin.Context, status int, code string, err error) {
	AbortWithMessage(ctx, status, code, err.Error(), err)
}

// AbortWithMessage responds with a short message and the underlying error text.
func AbortWithMessage(ctx *gin.Context, status int, code, message string, err error) {
	ctx.Abort()
	apiErr := APIError{Code: code, Message: message}
	if err != nil {
		ctx.Error(err)
		apiErr.Detail = err.Error()
	}
	ctx.PureJSON(status, apiErr)
}
