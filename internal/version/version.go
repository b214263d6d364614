// Package version хранит сведения о сборке, задаваемые через -ldflags "-X".
package version

import "go.uber.org/zap"

var (
	// buildVersion — версия сборки приложения.
	buildVersion string
	// buildDate — дата сборки приложения.
	buildDate string
	// buildCommit — хеш коммита сборки.
	buildCommit string
)

// Info — сведения о сборке. Незаданные поля равны "N/A".
type Info struct {
	Version string
	Date    string
	Commit  string
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// Get возвращает сведения о текущей сборке.
func Get() Info {
	return Info{
		Version: orNA(buildVersion),
		Date:    orNA(buildDate),
		Commit:  orNA(buildCommit),
	}
}

// LogBuildInfo пишет сведения о сборке в лог.
func LogBuildInfo(logger *zap.Logger) {
	info := Get()
	logger.Info("build info",
		zap.String("version", info.Version),
		zap.String("date", info.Date),
		zap.String("commit", info.Commit),
	)
}
