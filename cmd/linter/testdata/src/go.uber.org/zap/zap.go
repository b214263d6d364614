// Package zap — минимальная заглушка для analysistest.
package zap

type Logger struct{}

func (*Logger) Info(string)  {}
func (*Logger) Error(string) {}
func (*Logger) Fatal(string) {}
func (*Logger) Panic(string) {}

type SugaredLogger struct{}

func (*SugaredLogger) Fatalf(string, ...interface{}) {}
func (*SugaredLogger) Infow(string, ...interface{})  {}
