package log

import (
	"errors"
	"testing"
)

// 未调用 Init 时所有入口必须可用,库代码和测试不依赖初始化顺序。
func TestLoggingBeforeInit(t *testing.T) {
	Info("message before init")
	Infof("formatted %s", "message")
	Infow("structured message", "key", "value")
	Warnf("warn %d", 1)
	Error("error message", errors.New("boom"))
	Errorf("error %v", errors.New("boom"))
	Sync()
}

func TestInitReplacesDefaultLogger(t *testing.T) {
	Init("debug", "json", "")
	Infof("after init %s", "ok")

	// 非法 level 回退到 info,不触发 panic
	Init("not-a-level", "console", "")
	Info("after fallback init")
}
