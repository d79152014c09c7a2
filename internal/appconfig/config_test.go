package appconfig

import (
	"testing"

	"pkt.systems/paneflow/schema"
)

func TestDefaultConfigEngineMatchesSchema(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	engine := cfg.Engine.Schema()
	if engine.SyncTimeout != schema.DefaultSyncTimeout {
		t.Fatalf("unexpected sync timeout: %v", engine.SyncTimeout)
	}
	if engine.ImageBufferMax != schema.DefaultImageBufferMax {
		t.Fatalf("unexpected image buffer max: %d", engine.ImageBufferMax)
	}
	if engine.SyncBufferMax != schema.DefaultSyncBufferMax {
		t.Fatalf("unexpected sync buffer max: %d", engine.SyncBufferMax)
	}
}
