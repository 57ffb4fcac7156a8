package control

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentic-research/medgraph/internal/corpus"
	"github.com/agentic-research/medgraph/internal/ingest"
	"github.com/agentic-research/medgraph/internal/logging"
)

// Publisher writes a snapshot for each new generation next to the control
// file and then points the control block at it. The previous snapshot is
// removed once the new one is published.
//
// Published sequence numbers continue from the control block, not from the
// generation, so a restarted process keeps advancing the same file.
type Publisher struct {
	ctl  *Controller
	dir  string
	log  *logging.Logger
	prev string
}

func NewPublisher(ctl *Controller, log *logging.Logger) *Publisher {
	if log == nil {
		log = logging.Nop()
	}
	return &Publisher{ctl: ctl, dir: filepath.Dir(ctl.Path()), log: log, prev: ctl.SnapshotPath()}
}

// Publish is shaped for corpus.Manager.OnSwap.
func (p *Publisher) Publish(gen *corpus.Generation) {
	if err := p.publish(gen); err != nil {
		p.log.Error("control publish failed", "generation", gen.ID, "error", err)
	}
}

func (p *Publisher) publish(gen *corpus.Generation) error {
	seq := p.ctl.Seq() + 1
	snap := filepath.Join(p.dir, fmt.Sprintf("%s.gen%d.db", filepath.Base(p.ctl.Path()), seq))
	if snap == p.ctl.SnapshotPath() {
		return fmt.Errorf("snapshot %s is still published", snap)
	}

	// Readers only ever see a complete file under the published name.
	tmp := snap + ".tmp"
	if err := ingest.WriteSnapshot(tmp, gen); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}

	if err := p.ctl.Publish(seq, gen.ID, snap, uint64(gen.Store.Count())); err != nil {
		if snap != p.ctl.SnapshotPath() {
			_ = os.Remove(snap)
		}
		return err
	}
	if p.prev != "" && p.prev != snap {
		if err := os.Remove(p.prev); err != nil && !os.IsNotExist(err) {
			p.log.Warn("failed to remove old snapshot", "path", p.prev, "error", err)
		}
	}
	p.prev = snap
	p.log.Info("generation published to control file", "seq", seq, "generation", gen.ID, "snapshot", snap)
	return nil
}
