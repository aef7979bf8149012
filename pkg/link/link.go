package link

import "go.uber.org/zap"

// LinkManager shapes node uplinks from inside their network namespace.
type LinkManager struct {
	log *zap.Logger
}

func NewLinkManager(log *zap.Logger) *LinkManager {
	return &LinkManager{log: log.Named("link")}
}
