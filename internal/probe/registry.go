package probe

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/nodewatch/telemetryd/internal/model"
)

// reconcileInterval is how often the registry diffs the running container
// set against its own handles. It runs independently of the sampling
// cadence: container churn is slow relative to the 1s sampling tick.
const reconcileInterval = 2 * time.Second

// containerHandle is a per-container actor: a goroutine that keeps polling
// that one container's stats until its context is cancelled, with its
// latest result cached for Collect to read.
type containerHandle struct {
	cancel context.CancelFunc

	mu     sync.RWMutex
	latest model.ContainerStat
}

// ContainerRegistry reconciles the currently running container set against
// a map of per-container stream handles, spawning and aborting actors as
// containers come and go. Each handle owns its actor's cancel func, so
// removal from the map always aborts the actor.
type ContainerRegistry struct {
	mu       sync.RWMutex
	handles  map[string]*containerHandle
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewContainerRegistry() *ContainerRegistry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &ContainerRegistry{
		handles: make(map[string]*containerHandle),
		ctx:     ctx,
		cancel:  cancel,
	}
	go r.reconcileLoop()
	return r
}

// Close cancels the reconciliation loop and every live per-container actor.
func (r *ContainerRegistry) Close() {
	r.stopOnce.Do(func() {
		r.cancel()
		r.mu.Lock()
		for _, h := range r.handles {
			h.cancel()
		}
		r.mu.Unlock()
	})
}

func (r *ContainerRegistry) reconcileLoop() {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	r.reconcile()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.reconcile()
		}
	}
}

// reconcile diffs the currently running container IDs against r.handles:
// new IDs get a spawned actor, vanished IDs get their actor aborted and
// removed. No other code path mutates r.handles.
func (r *ContainerRegistry) reconcile() {
	running, names := listRunningContainers(r.ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.handles {
		if _, ok := running[id]; !ok {
			r.handles[id].cancel()
			delete(r.handles, id)
		}
	}
	for id := range running {
		if _, ok := r.handles[id]; ok {
			continue
		}
		hctx, cancel := context.WithCancel(r.ctx)
		h := &containerHandle{cancel: cancel}
		r.handles[id] = h
		go h.run(hctx, id, names[id])
	}
}

// run is the per-container actor loop: poll this one container's stats at
// the reconcile cadence until its context is cancelled (container left the
// running set, or the registry is closing).
func (h *containerHandle) run(ctx context.Context, id, name string) {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	h.poll(ctx, id, name)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.poll(ctx, id, name)
		}
	}
}

func (h *containerHandle) poll(parent context.Context, id, name string) {
	ctx, cancel := context.WithTimeout(parent, containerPollTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "stats", id, "--no-stream", "--format", "{{json .}}")
	out, err := cmd.Output()
	if err != nil {
		return
	}
	var raw dockerStatsLine
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(out))), &raw); err != nil {
		return
	}
	if raw.Name == "" {
		raw.Name = name
	}
	stat := toContainerStat(ctx, raw)

	h.mu.Lock()
	h.latest = stat
	h.mu.Unlock()
}

func (h *containerHandle) snapshot() model.ContainerStat {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// Collect returns the latest cached stat for every live container actor.
// It never shells out itself — that only happens in the background
// reconcile/poll loops — so it is cheap enough to call once per sampling
// tick.
func (r *ContainerRegistry) Collect() ([]model.ContainerStat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.ContainerStat, 0, len(r.handles))
	for _, h := range r.handles {
		stat := h.snapshot()
		if stat.ID == "" {
			continue // actor hasn't completed its first poll yet
		}
		out = append(out, stat)
	}
	model.SortContainersByName(out)
	return out, nil
}

// listRunningContainers shells `docker ps` once per reconcile tick. A
// missing docker binary or a failing command yields an empty running set
// rather than an error — hosts without a container runtime are valid.
func listRunningContainers(ctx context.Context) (map[string]struct{}, map[string]string) {
	running := make(map[string]struct{})
	names := make(map[string]string)

	if _, err := exec.LookPath("docker"); err != nil {
		return running, names
	}

	cmd := exec.CommandContext(ctx, "docker", "ps", "--format", "{{.ID}}\t{{.Names}}")
	out, err := cmd.Output()
	if err != nil {
		return running, names
	}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		id := fields[0]
		running[id] = struct{}{}
		if len(fields) == 2 {
			names[id] = fields[1]
		}
	}
	return running, names
}
