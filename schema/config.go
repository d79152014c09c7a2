package schema

import (
	"errors"
	"time"
)

// EngineConfig defines limits and timeouts for one engine session.
type EngineConfig struct {
	// SyncTimeout bounds how long a synchronized-output frame may stay
	// open before the safety valve forces a flush.
	SyncTimeout time.Duration
	// CarryMax bounds the query parser's carry-over buffer. An
	// unterminated sequence longer than this is emitted verbatim.
	CarryMax int
	// ImageBufferMax bounds a partial image frame held by the segmenter.
	ImageBufferMax int
	// SyncBufferMax bounds the synchronized-output frame buffer.
	SyncBufferMax int
	// BatchMaxBytes bounds the bytes delivered downstream per scheduler
	// turn; the remainder reschedules immediately.
	BatchMaxBytes int
}

// Engine config defaults.
const (
	DefaultSyncTimeout    = 100 * time.Millisecond
	DefaultCarryMax       = 4 * 1024
	DefaultImageBufferMax = 1024 * 1024
	DefaultSyncBufferMax  = 4 * 1024 * 1024
	DefaultBatchMaxBytes  = 256 * 1024
)

// NormalizeEngineConfig applies defaults and validates the config.
func NormalizeEngineConfig(cfg EngineConfig) (EngineConfig, error) {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}
	if cfg.CarryMax <= 0 {
		cfg.CarryMax = DefaultCarryMax
	}
	if cfg.ImageBufferMax <= 0 {
		cfg.ImageBufferMax = DefaultImageBufferMax
	}
	if cfg.SyncBufferMax <= 0 {
		cfg.SyncBufferMax = DefaultSyncBufferMax
	}
	if cfg.BatchMaxBytes <= 0 {
		cfg.BatchMaxBytes = DefaultBatchMaxBytes
	}
	if cfg.CarryMax < 64 {
		return EngineConfig{}, errors.New("carry max must allow at least one full sequence")
	}
	return cfg, nil
}
