package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	// 带详情
	err = New(ErrGameNotFound, "game-1")
	suite.Equal("游戏不存在", err.Message)
	suite.Equal("game-1", err.Details)

	// 多个详情
	err = New(ErrRemotePush, "写入失败", "表: pricing_sync", "key: default")
	suite.Equal("写入失败; 表: pricing_sync; key: default", err.Details)
}

// 测试格式化错误创建
func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrInvalidEntry, "人数 %d 无效", 0)
	suite.Equal(ErrInvalidEntry, err.Code)
	suite.Equal("人数 0 无效", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, ErrRemotePull)
	suite.Equal(ErrRemotePull, wrappedErr.Code)
	suite.Equal("connection refused", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
	suite.True(errors.Is(wrappedErr, originalErr))

	suite.Nil(Wrap(nil, ErrUnknown))

	// 已有的AppError保留原始错误码
	appErr := New(ErrProfileNotFound, "p-1")
	wrappedAppErr := Wrap(appErr, ErrInvalidParam, "额外信息")
	suite.Equal(ErrProfileNotFound, wrappedAppErr.Code)
	suite.Contains(wrappedAppErr.Details, "额外信息")
}

// 测试格式化错误包装
func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("timeout")
	wrappedErr := Wrapf(originalErr, ErrRemoteConnect, "连接 %s 失败", "db.example.com")
	suite.Equal(ErrRemoteConnect, wrappedErr.Code)
	suite.Equal("连接 db.example.com 失败", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

// 测试错误码判断
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrSystemPreset)
	suite.True(Is(err, ErrSystemPreset))
	suite.False(Is(err, ErrNotFound))
	suite.False(Is(nil, ErrSystemPreset))
	suite.False(Is(errors.New("标准错误"), ErrUnknown))

	// 经过 fmt.Errorf 包装后仍可识别
	suite.True(Is(fmt.Errorf("api: %w", err), ErrSystemPreset))
}

// 测试获取错误码
func (suite *ErrorsTestSuite) TestGetCode() {
	suite.Equal(ErrRemoteNotConfigured, GetCode(New(ErrRemoteNotConfigured)))
	suite.Equal(ErrUnknown, GetCode(errors.New("标准错误")))
	suite.Equal(ErrorCode(0), GetCode(nil))
}

// 测试错误消息
func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{
		Code:    ErrNotFound,
		Message: "资源未找到",
	}
	suite.Equal("[1002] 资源未找到", err.Error())

	err.Details = "id: 123"
	suite.Equal("[1002] 资源未找到: id: 123", err.Error())
}

// 测试Unwrap
func (suite *ErrorsTestSuite) TestUnwrap() {
	originalErr := errors.New("原始错误")
	suite.Equal(originalErr, Wrap(originalErr, ErrUnknown).Unwrap())
	suite.Nil(New(ErrUnknown).Unwrap())
}

// 测试WithDetails和WithCause
func (suite *ErrorsTestSuite) TestWithDetailsAndCause() {
	err := New(ErrInvalidParam).WithDetails("名称不能为空")
	suite.Equal("名称不能为空", err.Details)

	cause := errors.New("SQL语法错误")
	err2 := New(ErrDatabaseQuery).WithCause(cause)
	suite.Equal(cause, err2.Cause)
	suite.Equal("SQL语法错误", err2.Details)

	// 已有Details时保留
	err3 := New(ErrDatabaseQuery, "查询失败").WithCause(cause)
	suite.Equal("查询失败", err3.Details)
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidParam, 400},
		{ErrInvalidProfile, 400},
		{ErrNotFound, 404},
		{ErrGameNotFound, 404},
		{ErrSystemPreset, 403},
		{ErrTimeout, 408},
		{ErrRemoteNotConfigured, 409},
		{ErrRemotePush, 502},
		{ErrDatabaseConnect, 503},
		{ErrUnknown, 500},
		{ErrConfigLoad, 500},
	}

	for _, tc := range testCases {
		err := New(tc.code)
		suite.Equal(tc.expected, err.HTTPStatus(), "错误码 %d 应该返回HTTP状态码 %d", tc.code, tc.expected)
	}
}

// 测试调用栈捕获
func (suite *ErrorsTestSuite) TestStackCapture() {
	err := New(ErrUnknown)
	suite.NotEmpty(err.Stack)
	suite.NotEmpty(err.GetStack())
	suite.LessOrEqual(len(err.Stack), 10)
}

// 测试错误响应
func (suite *ErrorsTestSuite) TestErrorResponse() {
	err := New(ErrProfileNotFound, "p-1")
	response := NewErrorResponse(err, "req-123")

	suite.False(response.Success)
	suite.Equal(err, response.Error)
	suite.Equal("req-123", response.RequestID)
	suite.Greater(response.Timestamp, int64(0))
}

// 测试未知错误码
func (suite *ErrorsTestSuite) TestUnknownErrorCode() {
	err := New(ErrorCode(99999))
	suite.Equal(ErrorCode(99999), err.Code)
	suite.Equal("未知错误", err.Message)
}

// 测试各分组的错误消息
func (suite *ErrorsTestSuite) TestGroupMessages() {
	messages := map[ErrorCode]string{
		ErrGameNotFound:        "游戏不存在",
		ErrSystemPreset:        "系统预设不可删除",
		ErrInvalidProfile:      "无效的方案",
		ErrRemoteNotConfigured: "未配置云端同步",
		ErrRemotePull:          "云端读取失败",
		ErrDatabaseInsert:      "数据库插入失败",
		ErrConfigParse:         "配置解析失败",
	}

	for code, expectedMsg := range messages {
		suite.Equal(expectedMsg, New(code).Message)
	}
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
