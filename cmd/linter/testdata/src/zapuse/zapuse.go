package zapuse

import "go.uber.org/zap"

func Run(logger *zap.Logger, sugar *zap.SugaredLogger) {
	logger.Info("ok")
	logger.Error("ok")
	logger.Fatal("boom")       // want "call to zap Fatal outside main.main"
	logger.Panic("boom")       // want "call to zap Panic outside main.main"
	sugar.Fatalf("boom %d", 1) // want "call to zap Fatalf outside main.main"
	sugar.Infow("ok")
}

type local struct{}

func (local) Fatal(string) {}

func Shadowed() {
	local{}.Fatal("не zap")
}
