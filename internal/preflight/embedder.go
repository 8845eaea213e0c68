package preflight

import (
	"context"
	"fmt"
	"time"
)

// EmbedderProbeTimeout bounds the embedding provider probe.
const EmbedderProbeTimeout = 10 * time.Second

// CheckEmbedder embeds a probe text and compares the vector length with
// the dimensions the provider advertises.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	const name = "embedder"
	if c.embedder == nil {
		return skipped(name, "no embedder configured")
	}

	ctx, cancel := context.WithTimeout(ctx, EmbedderProbeTimeout)
	defer cancel()

	model := c.embedder.ModelName()
	if !c.embedder.Available(ctx) {
		details := ""
		if c.cfg != nil && c.cfg.Embeddings.Host != "" {
			details = "Host: " + c.cfg.Embeddings.Host
		}
		return failed(name, model+" unreachable", details)
	}

	vec, err := c.embedder.Embed(ctx, "ragindex preflight probe")
	if err != nil {
		return failed(name, fmt.Sprintf("%s failed to embed: %v", model, err), "")
	}
	if want := c.embedder.Dimensions(); len(vec) != want {
		return failed(name,
			fmt.Sprintf("%s returned %d dimensions, expected %d", model, len(vec), want),
			"Set embeddings.dimensions to the model's output size")
	}
	return passed(name, fmt.Sprintf("%s (%d dims)", model, len(vec)))
}
