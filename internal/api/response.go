package api

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/pricing-sync/internal/errors"
	"github.com/wfunc/pricing-sync/internal/middleware"
)

// respondError 将错误转换为统一的错误响应
func respondError(c *gin.Context, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.Wrap(err, errors.ErrUnknown)
	}

	// 调用栈只写日志，不返回给客户端
	resp := *appErr
	resp.Stack = nil
	c.JSON(appErr.HTTPStatus(), errors.NewErrorResponse(&resp, middleware.GetRequestID(c)))
}

// respondBindError 请求体解析失败
func respondBindError(c *gin.Context, err error) {
	respondError(c, errors.Wrap(err, errors.ErrInvalidParam))
}

// respondOK 成功响应
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondCreated 创建成功
func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    data,
	})
}
