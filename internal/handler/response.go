package handler

import (
	"context"
	"errors"
	"net/http"

	"kama_chat_client/pkg/errorx"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ResponseData 统一响应结构体
type ResponseData struct {
	Code int `json:"code"`           // 业务响应状态码
	Msg  any `json:"msg"`            // 提示信息
	Data any `json:"data,omitempty"` // 数据
}

// HandleSuccess 返回成功响应
func HandleSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code": errorx.CodeSuccess,
		"msg":  "success",
		"data": data,
	})
}

// HandleError 通用错误处理方法
// errorx.CodeError 原样返回错误码和消息，其余错误记录日志并转换为 CodeServerBusy
func HandleError(c *gin.Context, err error) {
	HandleErrorWithData(c, err, nil)
}

// HandleErrorWithData 出错但仍需返回数据（例如发送失败的那条消息）
func HandleErrorWithData(c *gin.Context, err error, data any) {
	var codeErr *errorx.CodeError
	if errors.As(err, &codeErr) {
		c.JSON(http.StatusOK, gin.H{
			"code": codeErr.Code,
			"msg":  codeErr.Error(),
			"data": data,
		})
		return
	}

	if errors.Is(err, context.Canceled) {
		zap.L().Debug("bridge request canceled", zap.String("path", c.Request.URL.Path))
	} else {
		zap.L().Error("system error",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Error(err),
		)
	}
	c.JSON(http.StatusOK, gin.H{
		"code": errorx.ErrServerBusy.Code,
		"msg":  errorx.ErrServerBusy.Msg,
		"data": data,
	})
}

// HandleParamError 处理参数绑定错误，validator 错误会被翻译
func HandleParamError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && Trans != nil {
		c.JSON(http.StatusOK, gin.H{
			"code": errorx.ErrInvalidParam.Code,
			"msg":  RemoveTopStruct(validationErrs.Translate(Trans)),
			"data": nil,
		})
		return
	}

	zap.L().Warn("param bind error", zap.Error(err))
	c.JSON(http.StatusOK, gin.H{
		"code": errorx.ErrInvalidParam.Code,
		"msg":  errorx.ErrInvalidParam.Msg,
		"data": nil,
	})
}
