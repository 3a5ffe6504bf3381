package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relves/landreg/internal/storage"
	"github.com/relves/landreg/pkg/registry"
)

// Options configures a Node.
type Options struct {
	// BatchMaxAge is how long an incomplete batch may wait before it is
	// sealed anyway.
	BatchMaxAge time.Duration
	// BatchMaxSize seals a batch as soon as it holds this many submissions.
	BatchMaxSize int
	// QueueDepth is how many sealed-but-unprocessed batches may pile up
	// before Submit blocks.
	QueueDepth int

	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

func (o *Options) withDefaults() {
	if o.BatchMaxAge <= 0 {
		o.BatchMaxAge = 500 * time.Millisecond
	}
	if o.BatchMaxSize <= 0 {
		o.BatchMaxSize = 64
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 16
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type nodeMetrics struct {
	submitted *prometheus.CounterVec
	finalized *prometheus.CounterVec
	sealTime  prometheus.Histogram
	treeSize  prometheus.Gauge
}

func newNodeMetrics(reg prometheus.Registerer) *nodeMetrics {
	m := &nodeMetrics{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "landreg",
			Subsystem: "ledger",
			Name:      "submissions_total",
			Help:      "Transactions accepted for finalization, by kind.",
		}, []string{"kind"}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "landreg",
			Subsystem: "ledger",
			Name:      "finalized_total",
			Help:      "Finalized transactions, by result status.",
		}, []string{"status"}),
		sealTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "landreg",
			Subsystem: "ledger",
			Name:      "seal_duration_seconds",
			Help:      "Time spent sealing a batch into the tree.",
			Buckets:   prometheus.DefBuckets,
		}),
		treeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "landreg",
			Subsystem: "ledger",
			Name:      "tree_size",
			Help:      "Number of leaves in the finalized transaction tree.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.submitted, m.finalized, m.sealTime, m.treeSize)
	}
	return m
}

// Node is the ledger backend: it accepts signed transactions for asynchronous
// finalization and exposes the finalized state through its store. Submit
// returns as soon as the submission is queued; results are resolved later by
// receipt.
type Node struct {
	store   storage.StateStore
	queue   *intakeQueue
	engine  *engine
	archive *Archive
	signer  *CheckpointSigner
	metrics *nodeMetrics
	logger  *slog.Logger
}

// Open builds a Node over an already-open state store, hydrating the merkle
// tree from persisted leaf hashes and verifying it against the stored root.
func Open(ctx context.Context, store storage.StateStore, signer *CheckpointSigner, opts Options) (*Node, error) {
	opts.withDefaults()
	logger := opts.Logger.With("component", "ledger")

	size, root, err := store.GetTreeState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tree state: %w", err)
	}
	t := newTree()
	if size > 0 {
		hashes, err := store.LeafHashes(ctx, 0, size)
		if err != nil {
			return nil, fmt.Errorf("load leaf hashes: %w", err)
		}
		if err := t.hydrate(hashes); err != nil {
			return nil, err
		}
		got, err := t.root()
		if err != nil {
			return nil, err
		}
		if string(got) != string(root) {
			return nil, fmt.Errorf("tree state mismatch: rebuilt root %x, stored root %x", got, root)
		}
		logger.Info("hydrated ledger tree", "size", size)
	}

	archive := NewArchive()
	metrics := newNodeMetrics(opts.Registerer)
	metrics.treeSize.Set(float64(t.size()))

	return &Node{
		store: store,
		queue: newIntakeQueue(opts.BatchMaxAge, opts.BatchMaxSize, opts.QueueDepth),
		engine: &engine{
			store:   store,
			archive: archive,
			tree:    t,
			signer:  signer,
			logger:  logger,
		},
		archive: archive,
		signer:  signer,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Submit accepts a signed transaction for finalization and returns its
// receipt. It verifies the signature and queues the submission; it never
// waits for execution. The context bounds only intake backpressure.
func (n *Node) Submit(ctx context.Context, tx *registry.Transaction) (registry.Receipt, error) {
	if err := tx.Verify(); err != nil {
		return registry.Receipt{}, err
	}
	raw, err := tx.CanonicalBytes()
	if err != nil {
		return registry.Receipt{}, registry.WrapError(registry.KindInternal, "encode transaction", err)
	}
	receipt, err := tx.Receipt()
	if err != nil {
		return registry.Receipt{}, registry.WrapError(registry.KindInternal, "derive receipt", err)
	}
	if err := n.queue.Add(ctx, submission{tx: tx, raw: raw, receipt: receipt}); err != nil {
		return registry.Receipt{}, err
	}
	n.metrics.submitted.WithLabelValues(string(tx.Kind)).Inc()
	return receipt, nil
}

// Run drains batches until ctx is cancelled, then seals whatever intake had
// already accepted. It is the only goroutine that writes to the store or the
// tree.
func (n *Node) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return n.drainPending(ctx.Err())
		case batch := <-n.queue.Batches():
			if err := n.sealBatch(ctx, batch); err != nil {
				return err
			}
		}
	}
}

func (n *Node) sealBatch(ctx context.Context, batch []submission) error {
	start := time.Now()
	statuses, err := n.engine.seal(ctx, batch)
	if err != nil {
		return fmt.Errorf("seal batch: %w", err)
	}
	n.metrics.sealTime.Observe(time.Since(start).Seconds())
	n.metrics.treeSize.Set(float64(n.engine.tree.size()))
	for _, status := range statuses {
		n.metrics.finalized.WithLabelValues(string(status)).Inc()
	}
	return nil
}

// drainPending seals submissions accepted before cancellation. Each of them
// already yielded a receipt to its client, so they must still reach a result.
func (n *Node) drainPending(cause error) error {
	pending := n.queue.drain()
	if len(pending) == 0 {
		return cause
	}
	n.logger.Info("sealing pending submissions before shutdown", "count", len(pending))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.sealBatch(ctx, pending); err != nil {
		return err
	}
	return cause
}

// Close stops intake. Run seals anything still queued when its context is
// cancelled, so Close catches only submissions accepted after Run already
// exited, and logs those as dropped.
func (n *Node) Close() error {
	if dropped := n.queue.Close(); dropped > 0 {
		n.logger.Warn("dropped unsealed submissions at shutdown", "count", dropped)
	}
	return n.archive.Close()
}

// Signer exposes the checkpoint signer so callers can publish the node's
// verification key.
func (n *Node) Signer() *CheckpointSigner {
	return n.signer
}

// Archive exposes the content-addressed transaction archive.
func (n *Node) Archive() *Archive {
	return n.archive
}
