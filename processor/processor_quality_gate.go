package processor

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/clearbalance/revcycle-pipeline/internal/cdm"
	"github.com/clearbalance/revcycle-pipeline/internal/quality"
)

// QualityGate evaluates validation predicates per entity type and sets
// the quarantine flag. Rows are never dropped or mutated beyond the
// flag; quarantine is advisory metadata consumed downstream.
type QualityGate struct {
	processors []Processor
	stats      QualityGateStats
}

type QualityGateStats struct {
	TotalChecked     atomic.Uint64
	TotalQuarantined atomic.Uint64
}

func NewQualityGate(config map[string]interface{}) (*QualityGate, error) {
	return &QualityGate{}, nil
}

func (g *QualityGate) Subscribe(p Processor) {
	g.processors = append(g.processors, p)
}

func (g *QualityGate) Process(ctx context.Context, msg Message) error {
	rec, ok := msg.Payload.(*cdm.Record)
	if !ok {
		return fmt.Errorf("expected *cdm.Record type for message.Payload, got %T", msg.Payload)
	}

	g.stats.TotalChecked.Add(1)

	reasons := quality.Evaluate(rec)
	rec.Quarantined = len(reasons) > 0
	rec.QuarantineReasons = reasons
	if rec.Quarantined {
		g.stats.TotalQuarantined.Add(1)
		log.Printf("[WARN] QualityGate: quarantined %s %s: %v", rec.Entity, rec.SurrogateKey, reasons)
	}

	for _, p := range g.processors {
		if err := p.Process(ctx, msg); err != nil {
			return fmt.Errorf("error in processor chain: %w", err)
		}
	}
	return nil
}

// GetStats returns current gate statistics.
func (g *QualityGate) GetStats() (checked, quarantined uint64) {
	return g.stats.TotalChecked.Load(), g.stats.TotalQuarantined.Load()
}
