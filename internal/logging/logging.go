// Package logging provides structured zap logging for Caleon, with one named
// sub-logger per subsystem so log output can be filtered by stage.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"caleon/internal/config"
)

// Category names the Caleon subsystems for named sub-loggers.
type Category = string

const (
	CategoryVault        Category = "vault"
	CategoryHarmonizer   Category = "harmonizer"
	CategoryConsent      Category = "consent"
	CategoryResonator    Category = "resonator"
	CategoryAnterior     Category = "anterior"
	CategoryEchoStack    Category = "echostack"
	CategoryEchoRipple   Category = "echoripple"
	CategoryPosterior    Category = "posterior"
	CategoryOrchestrator Category = "orchestrator"
	CategoryArticulator  Category = "articulator"
	CategoryConfig       Category = "config"
)

// New builds the root logger from configuration. Production JSON encoding by
// default; the development encoder and debug level are opt-in.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if cfg.Debug {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

// For returns the sub-logger for a subsystem. A nil root yields a no-op
// logger so components never need nil checks.
func For(root *zap.Logger, category Category) *zap.Logger {
	if root == nil {
		return zap.NewNop()
	}
	return root.Named(category)
}
