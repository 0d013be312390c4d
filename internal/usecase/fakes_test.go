package usecase

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/semmidev/dumpvault/internal/domain"
)

type fakeGateway struct {
	mu         sync.Mutex
	body       string
	pingErr    error
	dumpErrs   map[string]error
	restoreErr error
	started    chan struct{}
	release    chan struct{}
	dumped     []string
	restored   map[string]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		body:     "CREATE TABLE orders (id INT);\nINSERT INTO orders VALUES (1),(2),(3);\n",
		dumpErrs: map[string]error{},
		restored: map[string]string{},
	}
}

func (g *fakeGateway) Dump(ctx context.Context, database, outputPath string) error {
	if g.started != nil {
		g.started <- struct{}{}
	}
	if g.release != nil {
		<-g.release
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.dumped = append(g.dumped, database)

	if err := g.dumpErrs[database]; err != nil {
		// a failing tool may still leave a partial file behind
		_ = os.WriteFile(outputPath, []byte("-- partial"), 0644)
		return err
	}
	return os.WriteFile(outputPath, []byte(g.body), 0644)
}

func (g *fakeGateway) Restore(ctx context.Context, database, inputPath string) error {
	if g.restoreErr != nil {
		return g.restoreErr
	}
	body, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.restored[database] = string(body)
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) ListDatabases(ctx context.Context) ([]string, error) {
	return []string{"crm", "shop"}, nil
}

func (g *fakeGateway) DatabaseSize(ctx context.Context, database string) (float64, error) {
	return 42.5, nil
}

func (g *fakeGateway) TablesCount(ctx context.Context, database string) (int, error) {
	return 9, nil
}

func (g *fakeGateway) Ping(ctx context.Context) error { return g.pingErr }
func (g *fakeGateway) GetType() string                { return "fake" }

type fakeTarget struct {
	name    string
	err     error
	uploads atomic.Int32
}

func (t *fakeTarget) Name() string { return t.name }
func (t *fakeTarget) Type() string { return "fake" }

func (t *fakeTarget) Upload(ctx context.Context, localPath string) error {
	t.uploads.Add(1)
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	return t.err
}

func (t *fakeTarget) TestConnection(ctx context.Context) error { return t.err }

// browsableTarget can also list and fetch what it holds.
type browsableTarget struct {
	fakeTarget
	files []string
}

func (t *browsableTarget) List(ctx context.Context) ([]string, error) { return t.files, t.err }

func (t *browsableTarget) Download(ctx context.Context, name, localPath string) error {
	if t.err != nil {
		return t.err
	}
	return os.WriteFile(localPath, []byte(name), 0644)
}

type panickyTarget struct{ fakeTarget }

func (t *panickyTarget) Upload(ctx context.Context, localPath string) error {
	panic("transport exploded")
}

type fakeNotifier struct {
	mu      sync.Mutex
	results []*domain.BackupResult
}

func (n *fakeNotifier) Notify(ctx context.Context, result *domain.BackupResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, result)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.results)
}

type fakeRecorder struct {
	results  atomic.Int32
	rejected atomic.Int32
}

func (r *fakeRecorder) ObserveResult(*domain.BackupResult) { r.results.Add(1) }
func (r *fakeRecorder) ObserveRejected()                    { r.rejected.Add(1) }

type failingCompressor struct{}

func (failingCompressor) Compress(src, dst string) error   { return errors.New("disk full") }
func (failingCompressor) Decompress(src, dst string) error { return errors.New("disk full") }

type fakeChannels map[string]bool

func (c fakeChannels) TestConnections(ctx context.Context) map[string]bool { return c }
