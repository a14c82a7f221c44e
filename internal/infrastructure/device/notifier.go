package device

import (
	"go.uber.org/zap"
)

// LogNotifier delivers notifications to the structured log. It stands
// in for a platform notification center on headless deployments.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(title, body string) error {
	n.logger.Infow("notification", "title", title, "body", body)
	return nil
}
