// services/collect_service.go
package services

import (
	"context"
	"fmt"

	"github.com/Themichaelreimer/medistat/collectors"
	"github.com/Themichaelreimer/medistat/logger"
)

// Layers accepted by RunCollector.
const (
	LayerExtract   = "extract"
	LayerTransform = "transform"
	LayerAll       = "all"
)

// RunCollector drives the requested phase(s) of one collector. Under
// "all", transform is skipped when extract reports no new data. Fatal
// errors from either phase stop the batch job entirely.
func RunCollector(ctx context.Context, log *logger.Logger, reg *collectors.Registry, layer, name string) error {
	collector, err := reg.Get(name)
	if err != nil {
		return err
	}

	// Default in case the caller only wants to transform.
	newData := true

	if layer == LayerExtract || layer == LayerAll {
		log.Info("running extract", "collector", name)
		newData, err = collector.Extract(ctx)
		if err != nil {
			return fmt.Errorf("extract failed for %s: %w", name, err)
		}
		log.Info("extract finished", "collector", name, "new_data", newData)
	}

	if layer == LayerTransform || layer == LayerAll {
		if !newData {
			log.Info("no new data, skipping transform", "collector", name)
			return nil
		}
		log.Info("running transform", "collector", name)
		count, err := collector.Transform(ctx, nil)
		if err != nil {
			return fmt.Errorf("transform failed for %s: %w", name, err)
		}
		log.Info("transform finished", "collector", name, "datums", count)
	}

	return nil
}

// ValidLayer reports whether layer names a supported phase selection.
func ValidLayer(layer string) bool {
	return layer == LayerExtract || layer == LayerTransform || layer == LayerAll
}
