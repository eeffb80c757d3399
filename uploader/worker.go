package uploader

import (
	"bytes"
	"context"
	"net"
	"sync"
	"time"

	"github.com/teris-io/shortid"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/semaphore"

	"github.com/darinkishore/hurry/cas"
	"github.com/darinkishore/hurry/cmn"
	"github.com/darinkishore/hurry/registry"
)

// Worker is the daemonized background process that owns the upload queue
// (spec.md §4.6). It listens on a loopback TCP port via fasthttp (the
// teacher's dependency for the object-storage data path's HTTP server) and
// accepts msgp-framed submissions on POST /submit.
type Worker struct {
	Registry *registry.Registry
	CAS      *cas.CAS
	Tenant   string

	sem   *semaphore.Weighted
	wg    sync.WaitGroup
	quiet time.Duration

	mu       sync.Mutex
	lastWork time.Time

	ln       net.Listener
	shutdown *cmn.StopCh
}

func NewWorker(reg *registry.Registry, c *cas.CAS, tenant string) *Worker {
	return &Worker{
		Registry: reg,
		CAS:      c,
		Tenant:   tenant,
		sem:      semaphore.NewWeighted(cmn.DefaultUploadConcurrency),
		quiet:    cmn.DefaultWorkerQuietPeriod,
		lastWork: time.Now(),
		shutdown: cmn.NewStopCh(),
	}
}

// Listen binds a loopback TCP listener on an ephemeral port, returning its
// address for the endpoint file.
func (w *Worker) Listen() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	w.ln = ln
	return ln.Addr().String(), nil
}

// Serve runs the fasthttp server until idle for w.quiet, at which point it
// shuts down cleanly (spec.md §4.6 "Quiet-period shutdown").
func (w *Worker) Serve() error {
	srv := &fasthttp.Server{
		Handler: w.handle,
		Name:    "hurry-uploader",
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve(w.ln) }()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			w.mu.Lock()
			idle := time.Since(w.lastWork)
			w.mu.Unlock()
			if idle > w.quiet {
				w.wg.Wait() // let in-flight uploads finish before shutting down
				return srv.Shutdown()
			}
		case <-w.shutdown.Listen():
			w.wg.Wait()
			return srv.Shutdown()
		}
	}
}

func (w *Worker) handle(ctx *fasthttp.RequestCtx) {
	switch {
	case string(ctx.Path()) == "/shutdown" && ctx.IsPost():
		ctx.SetStatusCode(fasthttp.StatusAccepted)
		w.shutdown.Close()
		return
	case string(ctx.Path()) == "/status" && ctx.IsGet():
		w.mu.Lock()
		idleFor := time.Since(w.lastWork)
		w.mu.Unlock()
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString(idleFor.String())
		return
	case string(ctx.Path()) != "/submit" || !ctx.IsPost():
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	sub, err := decodeSubmission(bytes.NewReader(ctx.PostBody()))
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(err.Error())
		return
	}

	correlationID, _ := shortid.Generate()

	w.mu.Lock()
	w.lastWork = time.Now()
	w.mu.Unlock()

	w.wg.Add(1)
	go w.upload(correlationID, sub)

	ctx.SetStatusCode(fasthttp.StatusAccepted)
}

// upload enforces the blob-before-registration ordering invariant (spec.md
// §4.6): every blob must be durable in CAS before the registry record that
// references it is written, so a crash between the two leaves, at worst, an
// orphaned unreferenced blob rather than a registry entry pointing at
// nothing.
func (w *Worker) upload(correlationID string, sub submission) {
	defer w.wg.Done()
	if err := w.sem.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer w.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), cmn.DefaultCASPutGetTimeout)
	defer cancel()

	for key, content := range sub.Blobs {
		if err := w.CAS.Put(ctx, key, content); err != nil {
			logger.Errorf("[%s] blob upload failed for %s: %v", correlationID, key, err)
			return
		}
	}

	if err := w.Registry.Register(ctx, sub.Tenant, sub.Unit); err != nil {
		if registry.IsConflict(err) {
			logger.Warningf("[%s] registry conflict for %s, keeping existing record", correlationID, sub.Unit.UnitHash)
			return
		}
		logger.Errorf("[%s] registry register failed for %s: %v", correlationID, sub.Unit.UnitHash, err)
		return
	}
	logger.Vf(1, "[%s] submitted unit %s", correlationID, sub.Unit.UnitHash)
}
